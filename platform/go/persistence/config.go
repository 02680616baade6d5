package persistence

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultMaxRequestsPerSession bounds the round trips one unit of work may issue.
	DefaultMaxRequestsPerSession = 30
)

// AuthConfig carries PEM encoded client certificate material.
type AuthConfig struct {
	CertificatePEM string
	PrivateKeyPEM  string
}

// DatabaseConfig describes how to reach one named database on the cluster.
// URLs are ordered; the first entry is preferred for writes.
type DatabaseConfig struct {
	URLs     []string
	Database string
	Username string
	Password string
	Auth     *AuthConfig

	// OptimisticConcurrency defaults to true when nil.
	OptimisticConcurrency *bool
	// MaxRequestsPerSession defaults to DefaultMaxRequestsPerSession when zero.
	MaxRequestsPerSession int
}

// WithDatabase returns a copy of the config pointing at another database on the same endpoints.
func (c DatabaseConfig) WithDatabase(name string) DatabaseConfig {
	out := c
	out.URLs = append([]string(nil), c.URLs...)
	out.Database = name
	return out
}

// WithURLs returns a copy of the config using the provided endpoint list.
func (c DatabaseConfig) WithURLs(urls []string) DatabaseConfig {
	out := c
	out.URLs = append([]string(nil), urls...)
	return out
}

// OnEndpoints returns a copy of the config moved to other endpoints. Userinfo and query
// options of the current first URL carry over to endpoints that do not set their own.
func (c DatabaseConfig) OnEndpoints(urls []string) DatabaseConfig {
	out := c.WithURLs(urls)
	if len(c.URLs) == 0 {
		return out
	}
	tmpl, err := url.Parse(strings.TrimSpace(c.URLs[0]))
	if err != nil {
		return out
	}
	inherited := tmpl.Query()
	for i, raw := range out.URLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			// left for ConnString to report
			continue
		}
		if u.User == nil {
			u.User = tmpl.User
		}
		query := u.Query()
		for k, v := range inherited {
			if _, ok := query[k]; !ok {
				query[k] = v
			}
		}
		u.RawQuery = query.Encode()
		out.URLs[i] = u.String()
	}
	return out
}

// UseOptimisticConcurrency reports the effective optimistic concurrency flag.
func (c DatabaseConfig) UseOptimisticConcurrency() bool {
	if c.OptimisticConcurrency == nil {
		return true
	}
	return *c.OptimisticConcurrency
}

// MaxRequests reports the effective per-session request budget.
func (c DatabaseConfig) MaxRequests() int {
	if c.MaxRequestsPerSession <= 0 {
		return DefaultMaxRequestsPerSession
	}
	return c.MaxRequestsPerSession
}

// Validate checks the structural requirements shared by every backend.
func (c DatabaseConfig) Validate() error {
	if len(c.URLs) == 0 {
		return errors.New("at least one database url is required")
	}
	if strings.TrimSpace(c.Database) == "" {
		return errors.New("database name is required")
	}
	if c.Auth != nil && (c.Auth.CertificatePEM == "" || c.Auth.PrivateKeyPEM == "") {
		return errors.New("auth requires both certificate and private key")
	}
	return nil
}

// ConnString folds the endpoint list into a single multi-host postgres URL.
// Credentials and query options are taken from the first URL unless Username/Password are set.
//
//	postgres://u:p@h1:5432,h2:5432/db?target_session_attrs=read-write
func (c DatabaseConfig) ConnString() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	hosts := make([]string, 0, len(c.URLs))
	var first *url.URL
	for _, raw := range c.URLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return "", fmt.Errorf("parse database url %q: %w", raw, err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return "", fmt.Errorf("database url %q has no host", raw)
		}
		if first == nil {
			first = u
		}
		hosts = append(hosts, u.Host)
	}

	out := url.URL{
		Scheme: "postgres",
		User:   first.User,
		Host:   strings.Join(hosts, ","),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		if c.Password != "" {
			out.User = url.UserPassword(c.Username, c.Password)
		} else {
			out.User = url.User(c.Username)
		}
	}

	query := first.Query()
	if len(hosts) > 1 && query.Get("target_session_attrs") == "" {
		query.Set("target_session_attrs", "read-write")
	}
	out.RawQuery = query.Encode()

	return out.String(), nil
}

// TLSConfig builds a client TLS configuration from the auth material; nil when auth is absent.
func (c DatabaseConfig) TLSConfig() (*tls.Config, error) {
	if c.Auth == nil {
		return nil, nil
	}
	cert, err := tls.X509KeyPair([]byte(c.Auth.CertificatePEM), []byte(c.Auth.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
