// Package secrets resolves the four provider credential fields from the environment or
// from an age-encrypted dotenv file.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/joho/godotenv"

	"cloudbench/services/infra"
)

const (
	EnvClientID       = "ARM_CLIENT_ID"
	EnvClientSecret   = "ARM_CLIENT_SECRET"
	EnvTenantID       = "ARM_TENANT_ID"
	EnvSubscriptionID = "ARM_SUBSCRIPTION_ID"

	envAgeSecretKey = "AGE_SECRET_KEY"
)

// Source describes where credentials come from. Values already present in Env take
// precedence over the encrypted file.
type Source struct {
	Env          map[string]string
	File         string
	IdentityFile string
}

// Resolve returns the credentials or an error naming every missing field.
func Resolve(src Source) (infra.Credentials, error) {
	values := map[string]string{}
	if src.File != "" {
		decoded, err := decryptFile(src.File, src.IdentityFile, src.Env[envAgeSecretKey])
		if err != nil {
			return infra.Credentials{}, err
		}
		values = decoded
	}
	for _, key := range []string{EnvClientID, EnvClientSecret, EnvTenantID, EnvSubscriptionID} {
		if v := strings.TrimSpace(src.Env[key]); v != "" {
			values[key] = v
		}
	}

	var missing []string
	for _, key := range []string{EnvClientID, EnvClientSecret, EnvTenantID, EnvSubscriptionID} {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return infra.Credentials{}, fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}

	return infra.Credentials{
		ClientID:       values[EnvClientID],
		ClientSecret:   values[EnvClientSecret],
		TenantID:       values[EnvTenantID],
		SubscriptionID: values[EnvSubscriptionID],
	}, nil
}

// Environ returns the credential-related variables of the current process.
func Environ() map[string]string {
	env := map[string]string{}
	for _, key := range []string{EnvClientID, EnvClientSecret, EnvTenantID, EnvSubscriptionID, envAgeSecretKey} {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	return env
}

func decryptFile(path, identityFile, secretKey string) (map[string]string, error) {
	identities, err := loadIdentities(identityFile, secretKey)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open secrets file: %w", err)
	}
	defer f.Close()

	return Decrypt(f, identities...)
}

// Decrypt reads an age-encrypted dotenv document.
func Decrypt(src io.Reader, identities ...age.Identity) (map[string]string, error) {
	plain, err := age.Decrypt(src, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}
	values, err := godotenv.Parse(plain)
	if err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	return values, nil
}

// Encrypt seals a dotenv document for recipients.
func Encrypt(dst io.Writer, values map[string]string, recipients ...age.Recipient) error {
	doc, err := godotenv.Marshal(values)
	if err != nil {
		return err
	}
	w, err := age.Encrypt(dst, recipients...)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewBufferString(doc+"\n")); err != nil {
		return err
	}
	return w.Close()
}

// SealFile encrypts the dotenv file at plainPath to outPath for recipients. Only the
// credential keys are kept; the output is written with owner-only permissions.
func SealFile(plainPath, outPath string, recipients ...age.Recipient) error {
	if len(recipients) == 0 {
		return errors.New("at least one recipient is required")
	}
	plain, err := godotenv.Read(plainPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", plainPath, err)
	}

	values := map[string]string{}
	for _, key := range []string{EnvClientID, EnvClientSecret, EnvTenantID, EnvSubscriptionID} {
		if v := strings.TrimSpace(plain[key]); v != "" {
			values[key] = v
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("%s holds none of %s, %s, %s, %s", plainPath, EnvClientID, EnvClientSecret, EnvTenantID, EnvSubscriptionID)
	}

	var buf bytes.Buffer
	if err := Encrypt(&buf, values, recipients...); err != nil {
		return fmt.Errorf("encrypt secrets: %w", err)
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}

// ParseRecipients reads age public keys given inline and from an optional recipients file.
func ParseRecipients(keys []string, file string) ([]age.Recipient, error) {
	var recipients []age.Recipient
	for _, k := range keys {
		r, err := age.ParseX25519Recipient(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("parse recipient %q: %w", k, err)
		}
		recipients = append(recipients, r)
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open recipients file: %w", err)
		}
		defer f.Close()
		rs, err := age.ParseRecipients(f)
		if err != nil {
			return nil, fmt.Errorf("parse recipients file: %w", err)
		}
		recipients = append(recipients, rs...)
	}
	if len(recipients) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	return recipients, nil
}

func loadIdentities(identityFile, secretKey string) ([]age.Identity, error) {
	if identityFile != "" {
		data, err := os.ReadFile(identityFile)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}
		ids, err := age.ParseIdentities(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse identity file: %w", err)
		}
		return ids, nil
	}
	if secretKey = strings.TrimSpace(secretKey); secretKey != "" {
		id, err := age.ParseX25519Identity(secretKey)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", envAgeSecretKey, err)
		}
		return []age.Identity{id}, nil
	}
	return nil, errors.New("an age identity file or AGE_SECRET_KEY is required to read the secrets file")
}
