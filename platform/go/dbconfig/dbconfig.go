// Package dbconfig produces DatabaseConfig values and cluster signals from the environment.
package dbconfig

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cluster"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

type rawConfig struct {
	URLs                  []string `env:"DATABASE_URL,required" envSeparator:","`
	// defaults to service.ManagementDatabase
	Name                  string   `env:"DATABASE_NAME" envDefault:"palmyra_management"`
	User                  string   `env:"DATABASE_USER"`
	Password              string   `env:"DATABASE_PASSWORD"`
	CertificateB64        string   `env:"DATABASE_CERTIFICATE_B64"`
	PrivateKeyB64         string   `env:"DATABASE_PRIVATE_KEY_B64"`
	OptimisticConcurrency bool     `env:"DATABASE_OPTIMISTIC_CONCURRENCY" envDefault:"true"`
	MaxRequestsPerSession int      `env:"DATABASE_MAX_REQUESTS_PER_SESSION" envDefault:"30"`

	Cluster cluster.Environment
}

// Config is everything the provisioning layer reads from the environment.
type Config struct {
	Database persistence.DatabaseConfig
	Cluster  cluster.Environment
}

// Load reads the process environment.
func Load() (Config, error) {
	var raw rawConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, &cluster.ConfigurationError{Reason: err.Error()}
	}
	return build(raw)
}

// LoadFrom reads the provided environment map instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var raw rawConfig
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environ}); err != nil {
		return Config{}, &cluster.ConfigurationError{Reason: err.Error()}
	}
	return build(raw)
}

func build(raw rawConfig) (Config, error) {
	urls := make([]string, 0, len(raw.URLs))
	for _, u := range raw.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return Config{}, &cluster.ConfigurationError{Setting: "DATABASE_URL", Reason: "at least one url is required"}
	}
	if raw.MaxRequestsPerSession <= 0 {
		return Config{}, &cluster.ConfigurationError{Setting: "DATABASE_MAX_REQUESTS_PER_SESSION", Reason: "must be positive"}
	}

	auth, err := decodeAuth(raw.CertificateB64, raw.PrivateKeyB64)
	if err != nil {
		return Config{}, err
	}

	optimistic := raw.OptimisticConcurrency
	return Config{
		Database: persistence.DatabaseConfig{
			URLs:                  urls,
			Database:              strings.TrimSpace(raw.Name),
			Username:              raw.User,
			Password:              raw.Password,
			Auth:                  auth,
			OptimisticConcurrency: &optimistic,
			MaxRequestsPerSession: raw.MaxRequestsPerSession,
		},
		Cluster: raw.Cluster,
	}, nil
}

func decodeAuth(certB64, keyB64 string) (*persistence.AuthConfig, error) {
	certB64, keyB64 = strings.TrimSpace(certB64), strings.TrimSpace(keyB64)
	switch {
	case certB64 == "" && keyB64 == "":
		return nil, nil
	case certB64 == "" || keyB64 == "":
		return nil, &cluster.ConfigurationError{
			Setting: "DATABASE_CERTIFICATE_B64/DATABASE_PRIVATE_KEY_B64",
			Reason:  "certificate and private key must be provided together",
		}
	}

	cert, err := decodeText("DATABASE_CERTIFICATE_B64", certB64)
	if err != nil {
		return nil, err
	}
	key, err := decodeText("DATABASE_PRIVATE_KEY_B64", keyB64)
	if err != nil {
		return nil, err
	}
	return &persistence.AuthConfig{CertificatePEM: cert, PrivateKeyPEM: key}, nil
}

func decodeText(setting, value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", &cluster.ConfigurationError{Setting: setting, Reason: "invalid base64: " + err.Error()}
	}
	if !utf8.Valid(raw) {
		return "", &cluster.ConfigurationError{Setting: setting, Reason: "decoded value is not UTF-8 text"}
	}
	return string(raw), nil
}
