package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Gate        GateConfig        `yaml:"gate"`
	Results     ResultsConfig     `yaml:"results"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Policies    []PolicyConfig    `yaml:"policies,omitempty"`
	OpenTables  []string          `yaml:"open_tables,omitempty"`
	Connections []SavedConnection `yaml:"connections,omitempty"`
	Audit       AuditConfig       `yaml:"audit"`
}

// GateConfig holds statement validation settings.
type GateConfig struct {
	MaxStatementBytes   int     `yaml:"max_statement_bytes"`
	SuggestionThreshold float64 `yaml:"suggestion_threshold"`
	// QueryTimeoutSeconds bounds each execution; 0 disables the bound.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds"`
}

// QueryTimeout returns the configured execution bound as a Duration.
func (g GateConfig) QueryTimeout() time.Duration {
	return time.Duration(g.QueryTimeoutSeconds) * time.Second
}

// ResultsConfig holds result validation settings.
type ResultsConfig struct {
	RowLimit         int      `yaml:"row_limit"`
	NegativeFraction float64  `yaml:"negative_fraction"`
	FinancialTerms   []string `yaml:"financial_terms,omitempty"`
}

// CatalogConfig selects the schema source. When File is set the
// catalog is loaded from YAML; otherwise it is introspected from the
// connected database.
type CatalogConfig struct {
	File string `yaml:"file,omitempty"`
	// RefreshSeconds is the snapshot refresh interval; 0 disables
	// periodic refresh.
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// RefreshInterval returns the refresh interval as a Duration.
func (c CatalogConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// PolicyConfig binds a row-level predicate template to a table.
type PolicyConfig struct {
	Table     string `yaml:"table"`
	Predicate string `yaml:"predicate"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// SavedConnection holds parameters for a saved database connection.
type SavedConnection struct {
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
	File     string `yaml:"file,omitempty"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Gate: GateConfig{
			MaxStatementBytes:   64 * 1024,
			SuggestionThreshold: 0.6,
			QueryTimeoutSeconds: 30,
		},
		Results: ResultsConfig{
			RowLimit:         1000,
			NegativeFraction: 0.5,
		},
		Catalog: CatalogConfig{
			RefreshSeconds: 300,
		},
		Audit: AuditConfig{
			Enabled:   true,
			MaxSizeMB: 64,
		},
	}
}

// ConfigDir returns the sqlgate configuration directory path.
// It uses os.UserConfigDir to locate the base config directory and
// appends "sqlgate" to it, typically resulting in ~/.config/sqlgate/.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(base, "sqlgate"), nil
}

// Load reads a Config from the YAML file at path. If the file does not exist,
// it returns DefaultConfig without error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from the default path
// (ConfigDir()/config.yaml).
func LoadDefault() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(dir, "config.yaml"))
}

// Save writes the Config to the YAML file at path, creating any necessary
// parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveDefault writes the Config to the default path
// (ConfigDir()/config.yaml).
func (c *Config) SaveDefault() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return c.Save(filepath.Join(dir, "config.yaml"))
}

// Connection returns the saved connection with the given name.
func (c *Config) Connection(name string) (*SavedConnection, bool) {
	for i := range c.Connections {
		if c.Connections[i].Name == name {
			return &c.Connections[i], true
		}
	}
	return nil, false
}

// BuildDSN constructs a connection string from the individual fields of a
// SavedConnection. If DSN is already set, it is returned as-is. For
// file-based drivers (sqlite, duckdb) it returns the File field. For
// network drivers it builds "user:password@host:port/database".
func (sc *SavedConnection) BuildDSN() string {
	if sc.DSN != "" {
		return sc.DSN
	}

	driver := strings.ToLower(sc.Driver)
	if driver == "sqlite" || driver == "duckdb" {
		return sc.File
	}

	var b strings.Builder

	if sc.User != "" {
		b.WriteString(sc.User)
		if sc.Password != "" {
			b.WriteByte(':')
			b.WriteString(sc.Password)
		}
		b.WriteByte('@')
	}

	host := sc.Host
	if host == "" {
		host = "localhost"
	}
	b.WriteString(host)

	if sc.Port > 0 {
		fmt.Fprintf(&b, ":%d", sc.Port)
	}

	if sc.Database != "" {
		b.WriteByte('/')
		b.WriteString(sc.Database)
	}

	return b.String()
}

// DisplayString returns a human-readable representation of the connection,
// formatted as "driver://host:port/database" for network drivers or
// "driver://file" for file-based drivers.
func (sc *SavedConnection) DisplayString() string {
	driver := strings.ToLower(sc.Driver)
	if driver == "sqlite" || driver == "duckdb" {
		file := sc.File
		if file == "" {
			file = sc.DSN
		}
		return fmt.Sprintf("%s://%s", sc.Driver, file)
	}

	host := sc.Host
	if host == "" {
		host = "localhost"
	}

	var location string
	if sc.Port > 0 {
		location = fmt.Sprintf("%s:%d", host, sc.Port)
	} else {
		location = host
	}

	db := sc.Database
	if db != "" {
		return fmt.Sprintf("%s://%s/%s", sc.Driver, location, db)
	}
	return fmt.Sprintf("%s://%s", sc.Driver, location)
}
