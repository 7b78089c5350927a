package config

import "context"

// SecretProvider abstracts the retrieval of secrets so the loader works
// against AWS SSM Parameter Store in deployed environments and plain
// environment variables locally.
type SecretProvider interface {
	// GetParametersBatch resolves keys (SSM parameter paths or equivalent
	// identifiers) and returns key -> plaintext for every key it found.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// SecretWriter stores a secret. The bootstrap tool uses it to save a freshly
// minted refresh token where the mailer will resolve it.
type SecretWriter interface {
	PutSecret(ctx context.Context, path string, value SecretString) error
}
