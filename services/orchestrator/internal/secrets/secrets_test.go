package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedFile(t *testing.T, values map[string]string) (string, *age.X25519Identity) {
	t.Helper()
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encrypt(&buf, values, id.Recipient()))

	path := filepath.Join(t.TempDir(), "secrets.env.age")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path, id
}

func TestResolveFromEnv(t *testing.T) {
	creds, err := Resolve(Source{Env: map[string]string{
		EnvClientID:       "client",
		EnvClientSecret:   "secret",
		EnvTenantID:       "tenant",
		EnvSubscriptionID: "sub",
	}})
	require.NoError(t, err)
	assert.Equal(t, "client", creds.ClientID)
	assert.Equal(t, "sub", creds.SubscriptionID)
	assert.Equal(t, "secret", creds.Env()["TF_VAR_client_secret"])
}

func TestResolveMissing(t *testing.T) {
	_, err := Resolve(Source{Env: map[string]string{EnvClientID: "client"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvClientSecret)
	assert.Contains(t, err.Error(), EnvSubscriptionID)
	assert.NotContains(t, err.Error(), EnvClientID+",")
}

func TestResolveFromEncryptedFile(t *testing.T) {
	path, id := sealedFile(t, map[string]string{
		EnvClientID:       "file-client",
		EnvClientSecret:   "file-secret",
		EnvTenantID:       "file-tenant",
		EnvSubscriptionID: "file-sub",
	})

	identityPath := filepath.Join(t.TempDir(), "key.txt")
	require.NoError(t, os.WriteFile(identityPath, []byte(id.String()+"\n"), 0o600))

	creds, err := Resolve(Source{
		Env:          map[string]string{EnvClientID: "env-client"},
		File:         path,
		IdentityFile: identityPath,
	})
	require.NoError(t, err)
	assert.Equal(t, "env-client", creds.ClientID, "environment wins")
	assert.Equal(t, "file-secret", creds.ClientSecret)

	creds, err = Resolve(Source{
		Env:  map[string]string{envAgeSecretKey: id.String()},
		File: path,
	})
	require.NoError(t, err)
	assert.Equal(t, "file-client", creds.ClientID)
}

func TestResolveWrongIdentity(t *testing.T) {
	path, _ := sealedFile(t, map[string]string{EnvClientID: "x"})
	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	_, err = Resolve(Source{Env: map[string]string{envAgeSecretKey: other.String()}, File: path})
	assert.ErrorContains(t, err, "decrypt")

	_, err = Resolve(Source{File: path})
	assert.ErrorContains(t, err, "identity")
}

func TestSealFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "credentials.env")
	require.NoError(t, os.WriteFile(plain, []byte(
		"ARM_CLIENT_ID=client\nARM_CLIENT_SECRET=secret\nARM_TENANT_ID=tenant\nARM_SUBSCRIPTION_ID=sub\nUNRELATED=drop-me\n",
	), 0o600))

	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	recipients, err := ParseRecipients([]string{id.Recipient().String()}, "")
	require.NoError(t, err)

	sealed := filepath.Join(dir, "secrets.env.age")
	require.NoError(t, SealFile(plain, sealed, recipients...))

	info, err := os.Stat(sealed)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	f, err := os.Open(sealed)
	require.NoError(t, err)
	defer f.Close()
	values, err := Decrypt(f, id)
	require.NoError(t, err)
	assert.Equal(t, "secret", values[EnvClientSecret])
	assert.NotContains(t, values, "UNRELATED")

	creds, err := Resolve(Source{File: sealed, Env: map[string]string{envAgeSecretKey: id.String()}})
	require.NoError(t, err)
	assert.Equal(t, "sub", creds.SubscriptionID)
}

func TestSealFileRejectsEmptyInput(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "empty.env")
	require.NoError(t, os.WriteFile(plain, []byte("OTHER=1\n"), 0o600))
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	err = SealFile(plain, filepath.Join(dir, "out.age"), id.Recipient())
	assert.ErrorContains(t, err, EnvClientID)
	assert.Error(t, SealFile(plain, filepath.Join(dir, "out.age")))
}

func TestParseRecipients(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "recipients.txt")
	require.NoError(t, os.WriteFile(file, []byte("# ops team\n"+id.Recipient().String()+"\n"), 0o644))

	rs, err := ParseRecipients(nil, file)
	require.NoError(t, err)
	assert.Len(t, rs, 1)

	_, err = ParseRecipients([]string{"not-a-key"}, "")
	assert.Error(t, err)
	_, err = ParseRecipients(nil, "")
	assert.Error(t, err)
}
