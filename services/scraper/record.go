package scraper

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Record is the structured summary extracted from one source page.
type Record struct {
	Source      string     `json:"source,omitempty"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	BodyExcerpt string     `json:"body_excerpt"`
}

// Codec selects the blob encoding for a record sequence.
type Codec string

const (
	CodecJSON     Codec = "json"
	CodecJSONZstd Codec = "json+zstd"
)

// ParseCodec accepts "json", "json+zstd" or "zstd".
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(CodecJSON):
		return CodecJSON, nil
	case string(CodecJSONZstd), "zstd":
		return CodecJSONZstd, nil
	default:
		return "", fmt.Errorf("unknown codec %q", s)
	}
}

// Extension returns the conventional blob name suffix for the codec.
func (c Codec) Extension() string {
	if c == CodecJSONZstd {
		return ".json.zst"
	}
	return ".json"
}

// Encode serialises records as a JSON array, compressed when the codec asks for it.
func Encode(records []Record, codec Codec) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}

	switch codec {
	case CodecJSON, "":
		return raw, nil
	case CodecJSONZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}

// Decode is the inverse of Encode.
func Decode(data []byte, codec Codec) ([]Record, error) {
	switch codec {
	case CodecJSON, "":
	case CodecJSONZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	return records, nil
}
