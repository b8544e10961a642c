package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ricirt/task-insights/internal/domain"
)

const (
	defaultStorePort     = 5432
	defaultStoreDatabase = "notetakerdb"
	defaultStoreUser     = "postgres"
	defaultStorePassword = "postgres"
)

// StoreConfig is the typed form of the task database location.
type StoreConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"gt=0,lt=65536"`
	Database string `validate:"required"`
	User     string
	Password string

	ConnectTimeout time.Duration `validate:"gte=0"`
}

// DefaultStoreConfig returns the static store location used when no
// connection string is supplied.
func DefaultStoreConfig(host string) StoreConfig {
	return StoreConfig{
		Host:     host,
		Port:     defaultStorePort,
		Database: defaultStoreDatabase,
		User:     defaultStoreUser,
		Password: defaultStorePassword,
	}
}

// ParseStoreConnString parses a semicolon separated key=value connection
// string such as "Host=db;Port=5432;Database=tasks;Username=app;Password=x".
//
// Key names are case-insensitive and unknown keys are ignored. "Username"
// and "User Id" are synonyms. Host and Database are required; a missing
// port defaults to 5432.
func ParseStoreConnString(s string) (StoreConfig, error) {
	cfg := StoreConfig{Port: defaultStorePort}

	for _, part := range strings.Split(s, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "host":
			cfg.Host = value
		case "database":
			cfg.Database = value
		case "username", "user id":
			cfg.User = value
		case "password":
			cfg.Password = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return StoreConfig{}, fmt.Errorf("%w: port %q is not a number", domain.ErrInvalidConnString, value)
			}
			cfg.Port = port
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return StoreConfig{}, fmt.Errorf("%w: %v", domain.ErrInvalidConnString, err)
	}
	return cfg, nil
}

// DSN renders the config as a libpq keyword/value string understood by pgx.
func (c StoreConfig) DSN() string {
	parts := []string{
		"host=" + quoteDSNValue(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"dbname=" + quoteDSNValue(c.Database),
	}
	if c.User != "" {
		parts = append(parts, "user="+quoteDSNValue(c.User))
	}
	if c.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(c.Password))
	}
	if secs := int(c.ConnectTimeout / time.Second); secs > 0 {
		parts = append(parts, "connect_timeout="+strconv.Itoa(secs))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
