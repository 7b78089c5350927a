package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider by treating each key as the name of
// an environment variable. It lets a deployed-style configuration, with
// _SSM_PARAM pointers, run on a workstation where the "paths" are just other
// variables exported from a .env file.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch returns the value of every key set in the environment.
// Unset keys are omitted; the loader reports them as missing.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
