package dbclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const defaultDialTimeout = 10 * time.Second

// buildPostgresDSN accepts a postgres:// URL or a key=value string and
// returns a key=value string with sslmode set. A non-empty password is
// appended, overriding any earlier password key.
func buildPostgresDSN(dsn, password string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		kv, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres url: %w", err)
		}
		dsn = kv
	}
	if !strings.Contains(dsn, "sslmode=") {
		dsn = strings.TrimSpace(dsn + " sslmode=disable")
	}
	if password != "" {
		dsn += " password=" + quoteConnValue(password)
	}
	return dsn, nil
}

// quoteConnValue quotes a libpq key=value value.
func quoteConnValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
