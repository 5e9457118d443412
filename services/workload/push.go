package workload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
)

// RegistryLogin is the admin login of the provisioned container registry.
type RegistryLogin struct {
	Server   string
	Username string
	Password string
}

// Pusher copies an image into the provisioned registry.
type Pusher struct {
	keychain authn.Keychain
	copy     func(src, dst string, opts ...crane.Option) error
}

// NewPusher returns a Pusher that resolves credentials for other registries through
// keychain, falling back to the docker config keychain when nil.
func NewPusher(keychain authn.Keychain) *Pusher {
	if keychain == nil {
		keychain = authn.DefaultKeychain
	}
	return &Pusher{keychain: keychain, copy: crane.Copy}
}

// Push copies source to login.Server/repository and returns the destination reference.
func (p *Pusher) Push(ctx context.Context, source, repository string, login RegistryLogin) (string, error) {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(repository) == "" {
		return "", errors.New("source image and repository are required")
	}
	if strings.TrimSpace(login.Server) == "" {
		return "", errors.New("registry login server is required")
	}

	login.Server = strings.TrimSuffix(login.Server, "/")
	dst := login.Server + "/" + strings.TrimPrefix(repository, "/")
	keychain := authn.NewMultiKeychain(registryKeychain{login: login}, p.keychain)

	if err := p.copy(source, dst, crane.WithContext(ctx), crane.WithAuthFromKeychain(keychain)); err != nil {
		return "", fmt.Errorf("copy %s to %s: %w", source, dst, err)
	}
	return dst, nil
}

// registryKeychain answers only for the provisioned registry and defers everything else.
type registryKeychain struct {
	login RegistryLogin
}

func (k registryKeychain) Resolve(res authn.Resource) (authn.Authenticator, error) {
	if !strings.EqualFold(res.RegistryStr(), k.login.Server) || k.login.Username == "" {
		return authn.Anonymous, nil
	}
	return authn.FromConfig(authn.AuthConfig{
		Username: k.login.Username,
		Password: k.login.Password,
	}), nil
}
