package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// CredentialSource resolves secret values by key. The concrete strategy is
// chosen once at startup by ResolveCredentialSource; nothing outside this
// package does ad-hoc secret lookups.
type CredentialSource interface {
	Lookup(key string) (string, bool)
}

type envSource struct{}

func (envSource) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

type fileSource struct {
	values map[string]string
}

func (f fileSource) Lookup(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// ResolveCredentialSource picks the secret-lookup strategy from CREDENTIAL_SOURCE:
// "env" (default) reads process environment variables; "file" reads the dotenv
// file named by CREDENTIALS_FILE (default "credentials.env") once, up front.
func ResolveCredentialSource() (CredentialSource, error) {
	switch src := os.Getenv("CREDENTIAL_SOURCE"); src {
	case "", "env":
		return envSource{}, nil
	case "file":
		path := os.Getenv("CREDENTIALS_FILE")
		if path == "" {
			path = "credentials.env"
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read CREDENTIALS_FILE %s: %w", path, err)
		}
		return fileSource{values: values}, nil
	default:
		return nil, fmt.Errorf("unknown CREDENTIAL_SOURCE %q (want env or file)", src)
	}
}

func lookup(creds CredentialSource, key string) string {
	v, _ := creds.Lookup(key)
	return v
}
