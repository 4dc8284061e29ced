// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"cmp"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/domain"
)

// PostgresOptions describes a postgres target. DSN wins over the discrete
// fields when set.
type PostgresOptions struct {
	DSN             string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	ConnectTimeout  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type OpenOptions struct {
	Engine     string
	SQLitePath string
	Postgres   PostgresOptions
}

// ConnString returns the pgx connection string, building one from the
// discrete fields when DSN is empty.
func (p PostgresOptions) ConnString() (string, error) {
	if dsn := strings.TrimSpace(p.DSN); dsn != "" {
		return dsn, nil
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"databaseHost", p.Host},
		{"databaseUser", p.User},
		{"databaseName", p.Database},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("postgres requires databaseDsn or %s", strings.Join(missing, ", "))
	}

	port := p.Port
	if port <= 0 {
		port = 5432
	}
	sslMode := cmp.Or(strings.TrimSpace(p.SSLMode), "disable")
	timeout := p.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(timeout/time.Second)))
	q.Set("application_name", "dunning")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(strings.TrimSpace(p.User), p.Password),
		Host:     fmt.Sprintf("%s:%d", strings.TrimSpace(p.Host), port),
		Path:     "/" + strings.TrimSpace(p.Database),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// Open picks the engine and returns a migrated database.
func Open(opts OpenOptions) (*DB, error) {
	dialect, err := ParseDialect(opts.Engine)
	if err != nil {
		return nil, err
	}

	if dialect == DialectPostgres {
		dsn, err := opts.Postgres.ConnString()
		if err != nil {
			return nil, err
		}
		log.Debug().Str("target", redactDSN(dsn)).Msg("Connecting to postgres")
		return newPostgres(dsn, opts.Postgres)
	}

	if strings.TrimSpace(opts.SQLitePath) == "" {
		return nil, errors.New("sqlite database path is required")
	}
	return New(opts.SQLitePath)
}

// OpenFromConfig opens the database described by cfg. sqlitePath is only
// consulted for the sqlite engine.
func OpenFromConfig(cfg *domain.Config, sqlitePath string) (*DB, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	return Open(OpenOptions{
		Engine:     cfg.DatabaseEngine,
		SQLitePath: sqlitePath,
		Postgres: PostgresOptions{
			DSN:             cfg.DatabaseDSN,
			Host:            cfg.DatabaseHost,
			Port:            cfg.DatabasePort,
			User:            cfg.DatabaseUser,
			Password:        cfg.DatabasePassword,
			Database:        cfg.DatabaseName,
			SSLMode:         cfg.DatabaseSSLMode,
			ConnectTimeout:  seconds(cfg.DatabaseConnectTimeout),
			MaxOpenConns:    cfg.DatabaseMaxOpenConns,
			MaxIdleConns:    cfg.DatabaseMaxIdleConns,
			ConnMaxLifetime: seconds(cfg.DatabaseConnMaxLifetime),
		},
	})
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// redactDSN hides the password of a URL-style DSN for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return domain.RedactString(dsn)
	}
	if u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "redacted")
	}
	return u.String()
}
