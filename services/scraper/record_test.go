package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	published := time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)
	return []Record{
		{Source: "bbc", Title: "Storm reaches the coast", URL: "https://example.com/a", PublishedAt: &published, BodyExcerpt: "Wind and rain, «ünïcode»."},
		{Title: "Undated", URL: "https://example.com/b"},
	}
}

func TestEncodeDecodeLossless(t *testing.T) {
	for _, codec := range []Codec{CodecJSON, CodecJSONZstd} {
		t.Run(string(codec), func(t *testing.T) {
			data, err := Encode(sampleRecords(), codec)
			require.NoError(t, err)

			got, err := Decode(data, codec)
			require.NoError(t, err)
			assert.Equal(t, sampleRecords(), got)
		})
	}
}

func TestEncodeEmptyIsArray(t *testing.T) {
	data, err := Encode(nil, CodecJSON)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CodecJSONZstd, c)
	assert.Equal(t, ".json.zst", c.Extension())

	c, err = ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c)

	_, err = ParseCodec("xml")
	assert.Error(t, err)
}
