package oras

import (
	"context"
	"errors"
	"strings"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// DockerCredentials returns a store backed by the Docker config file and
// its credential helpers.
func DockerCredentials() (credentials.Store, error) {
	return credentials.NewStoreFromDocker(credentials.StoreOptions{})
}

// StaticCredentials returns a read-only store holding one username and
// password for registry.
func StaticCredentials(registry, username, password string) credentials.Store {
	return &staticStore{
		registry: normalizeHost(registry),
		cred:     auth.Credential{Username: username, Password: password},
	}
}

// StaticToken returns a read-only store holding one bearer token for
// registry.
func StaticToken(registry, token string) credentials.Store {
	return &staticStore{
		registry: normalizeHost(registry),
		cred:     auth.Credential{AccessToken: token},
	}
}

type staticStore struct {
	registry string
	cred     auth.Credential
}

func (s *staticStore) Get(_ context.Context, serverAddress string) (auth.Credential, error) {
	if normalizeHost(serverAddress) == s.registry {
		return s.cred, nil
	}
	return auth.EmptyCredential, nil
}

func (s *staticStore) Put(context.Context, string, auth.Credential) error {
	return errors.New("oras: static credential store is read-only")
}

func (s *staticStore) Delete(context.Context, string) error {
	return errors.New("oras: static credential store is read-only")
}

// normalizeHost strips a scheme and trailing path from a server address.
func normalizeHost(address string) string {
	address = strings.TrimPrefix(address, "https://")
	address = strings.TrimPrefix(address, "http://")
	if host, _, ok := strings.Cut(address, "/"); ok {
		address = host
	}
	return strings.ToLower(address)
}
