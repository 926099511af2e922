// Package bindings resolves database and tone-analyzer credentials from
// Cloud Foundry style service bindings.
package bindings

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ent0n29/convotone/internal/policy"
)

// EnvVar holds the service bindings when running on the platform.
const EnvVar = "VCAP_SERVICES"

var (
	ErrNoDatabaseBinding = errors.New("no database service binding")
	ErrMissingURI        = errors.New("database binding has no uri")
)

// Binding is one bound service instance.
type Binding struct {
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	Credentials map[string]any `json:"credentials"`
}

// Services maps a logical service name to its bound instances.
type Services map[string][]Binding

// Database holds the resolved database connection parameters.
type Database struct {
	URI    string
	CACert []byte
}

// Analyzer holds the resolved tone analyzer parameters.
type Analyzer struct {
	URL      string
	Username string
	Password string
	Version  string
}

// Credentials is built once at startup and shared read-only afterwards.
type Credentials struct {
	Database *Database
	Analyzer *Analyzer
}

// Options controls how bindings are looked up.
type Options struct {
	DatabaseNames   []string
	AnalyzerName    string
	AnalyzerURL     string
	AnalyzerVersion string
	RequireDatabase bool
}

// Load reads VCAP_SERVICES, falling back to the local override file. A missing
// local file yields an empty set of services.
func Load(localFile string) (Services, error) {
	if raw := strings.TrimSpace(os.Getenv(EnvVar)); raw != "" {
		services, err := parse([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvVar, err)
		}
		return services, nil
	}
	if strings.TrimSpace(localFile) == "" {
		return Services{}, nil
	}
	data, err := os.ReadFile(localFile)
	if errors.Is(err, os.ErrNotExist) {
		return Services{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", localFile, err)
	}
	services, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", localFile, err)
	}
	return services, nil
}

// parse accepts either the bare services map or a document with the map under
// a top-level "services" key.
func parse(data []byte) (Services, error) {
	var wrapped struct {
		Services Services `json:"services"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Services != nil {
		return wrapped.Services, nil
	}
	var services Services
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, err
	}
	if services == nil {
		services = Services{}
	}
	return services, nil
}

// First returns the first binding registered under any of names, in order.
func (s Services) First(names ...string) (Binding, bool) {
	for _, name := range names {
		if arr := s[name]; len(arr) > 0 {
			return arr[0], true
		}
	}
	return Binding{}, false
}

// Resolve turns bound services into connection credentials.
func Resolve(services Services, opts Options) (Credentials, error) {
	var creds Credentials

	if b, ok := services.First(opts.DatabaseNames...); ok {
		db, err := databaseFrom(b)
		if err != nil {
			return Credentials{}, err
		}
		creds.Database = db
	} else if opts.RequireDatabase {
		return Credentials{}, fmt.Errorf("%w: bind one of %s", ErrNoDatabaseBinding, strings.Join(opts.DatabaseNames, ", "))
	}

	if b, ok := services.First(opts.AnalyzerName); ok {
		creds.Analyzer = &Analyzer{
			URL:      opts.AnalyzerURL,
			Username: b.String("username"),
			Password: b.String("password"),
			Version:  opts.AnalyzerVersion,
		}
	}
	return creds, nil
}

func databaseFrom(b Binding) (*Database, error) {
	uri := b.String("uri")
	if uri == "" {
		return nil, ErrMissingURI
	}
	db := &Database{URI: uri}
	if encoded := b.String("ca_certificate_base64"); encoded != "" {
		ca, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode ca_certificate_base64: %w", err)
		}
		db.CACert = ca
	}
	return db, nil
}

// String returns a credential field as a trimmed string, or "" when absent.
func (b Binding) String(key string) string {
	v, ok := b.Credentials[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// TLSConfig returns a client TLS config that validates the server against the
// bound CA, or the system roots when no CA is bound.
func (d *Database) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if len(d.CACert) == 0 {
		return cfg, nil
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(d.CACert) {
		return nil, errors.New("ca certificate contains no PEM certificates")
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// Redacted describes the credentials without secrets.
func (c Credentials) Redacted() map[string]any {
	out := map[string]any{"database": nil, "analyzer": nil}
	if c.Database != nil {
		out["database"] = map[string]any{
			"uri":    policy.RedactURIPassword(c.Database.URI),
			"ca_pem": len(c.Database.CACert) > 0,
		}
	}
	if c.Analyzer != nil {
		out["analyzer"] = map[string]any{
			"url":      c.Analyzer.URL,
			"username": c.Analyzer.Username,
			"version":  c.Analyzer.Version,
		}
	}
	return out
}
