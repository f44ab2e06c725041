package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddress   string `env:"MIGRATOR_HTTP_ADDR" envDefault:":8080"`
	LogLevel      string `env:"MIGRATOR_LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"MIGRATOR_LOG_FORMAT" envDefault:"json"`
	RelationsFile string `env:"MIGRATOR_RELATIONS_FILE"`
	SecretKey     string `env:"SECRET_KEY"`
	CookieSecure  bool   `env:"MIGRATOR_COOKIE_SECURE" envDefault:"false"`

	SecretKeyBytes []byte

	Source      SourceConfig      `envPrefix:"MYSQL_"`
	Destination DestinationConfig `envPrefix:"POSTGRES_"`
	Transfer    TransferConfig    `envPrefix:"MIGRATOR_"`
	Tracing     TracingConfig     `envPrefix:"OTEL_"`
}

// SourceConfig describes the legacy MySQL server holding every source database.
type SourceConfig struct {
	DSN          string   `env:"DSN"`
	Host         string   `env:"HOST" envDefault:"localhost"`
	Port         int      `env:"PORT" envDefault:"3306"`
	User         string   `env:"USER" envDefault:"root"`
	Password     string   `env:"PASSWORD"`
	Databases    []string `env:"DATABASES" envSeparator:"," envDefault:"THIERNO,ASSANE,ALPHONSE,BBYOU,VENTES1"`
	MaxOpenConns int      `env:"MAX_OPEN_CONNS" envDefault:"5"`
}

// DestinationConfig describes the consolidated PostgreSQL database.
type DestinationConfig struct {
	DSN      string `env:"DSN"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Database string `env:"DB" envDefault:"central_db"`
	Schema   string `env:"SCHEMA" envDefault:"public"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"8"`
}

type TransferConfig struct {
	MaxConcurrent    int           `env:"MAX_CONCURRENT" envDefault:"4"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"30s"`
	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT" envDefault:"10s"`
}

// TracingConfig follows the standard OpenTelemetry variable names. An empty
// endpoint disables span export.
type TracingConfig struct {
	Endpoint    string  `env:"EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `env:"EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"SERVICE_NAME" envDefault:"migrator"`
	SampleRate  float64 `env:"TRACES_SAMPLER_ARG" envDefault:"1"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing file is fine, the real environment still applies
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Source.Databases = splitAndTrim(strings.Join(cfg.Source.Databases, ","))

	if cfg.SecretKey != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(cfg.SecretKey)
		if err != nil {
			return Config{}, errors.New("SECRET_KEY must be base64")
		}
		cfg.SecretKeyBytes = keyBytes
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Source.Databases) == 0 {
		return errors.New("MYSQL_DATABASES must list at least one database")
	}
	if c.Source.DSN != "" {
		if _, err := mysql.ParseDSN(c.Source.DSN); err != nil {
			return fmt.Errorf("invalid MYSQL_DSN: %w", err)
		}
	}
	if c.Destination.Schema == "" {
		return errors.New("POSTGRES_SCHEMA is required")
	}
	if c.Transfer.MaxConcurrent <= 0 {
		return errors.New("MIGRATOR_MAX_CONCURRENT must be positive")
	}
	if c.Transfer.OperationTimeout <= 0 {
		return errors.New("MIGRATOR_OPERATION_TIMEOUT must be positive")
	}
	return nil
}

// RequireSecret is checked only by the HTTP service, which signs navigation cookies.
func (c Config) RequireSecret() error {
	if c.SecretKey == "" || len(c.SecretKeyBytes) < 32 {
		return errors.New("SECRET_KEY is required (base64, >=32 bytes)")
	}
	return nil
}

// MySQLDSN returns MYSQL_DSN when set, otherwise builds one from the parts.
// The DSN never selects a database: tables are always qualified.
func (s SourceConfig) MySQLDSN(statementTimeout time.Duration) string {
	if s.DSN != "" {
		return s.DSN
	}
	cfg := mysql.Config{
		User:                 s.User,
		Passwd:               s.Password,
		Net:                  "tcp",
		Addr:                 net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		AllowNativePasswords: true,
		ParseTime:            true,
		ReadTimeout:          statementTimeout,
		WriteTimeout:         statementTimeout,
		Params:               map[string]string{},
	}
	return cfg.FormatDSN()
}

// PostgresDSN returns POSTGRES_DSN when set, otherwise builds a URL from the parts.
func (d DestinationConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// AllowsDatabase reports whether name is one of the configured source databases.
func (s SourceConfig) AllowsDatabase(name string) bool {
	for _, db := range s.Databases {
		if strings.EqualFold(db, name) {
			return true
		}
	}
	return false
}

func splitAndTrim(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
