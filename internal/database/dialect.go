package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies the SQL flavour behind a connection.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ErrUnsupportedDSN is returned for DSNs with an unknown scheme.
var ErrUnsupportedDSN = errors.New("unsupported database dsn")

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	default:
		return "sqlite"
	}
}

// Placeholder returns the bind parameter for the 1-based position i.
func (d Dialect) Placeholder(i int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// EncodeTime converts a timestamp into the value bound for the timestamp column.
// SQLite stores RFC3339 text so that the unique constraint compares canonical strings.
func (d Dialect) EncodeTime(t time.Time) any {
	t = t.UTC()
	if d == DialectSQLite {
		return t.Format(time.RFC3339)
	}
	return t
}

// DecodeTime reads a timestamp column scanned into an any.
func DecodeTime(v any) (time.Time, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC(), nil
	case string:
		return parseTimeText(tv)
	case []byte:
		return parseTimeText(string(tv))
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp value %T", v)
	}
}

func parseTimeText(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// ParseDSN splits a DSN into its dialect and the driver-specific data source name.
// Accepted forms: sqlite://<path>, sqlite://:memory:, postgres://..., postgresql://...
func ParseDSN(dsn string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDSN)
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
	}
}

// redact drops credentials before a DSN reaches an error message or log line.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return dsn
}
