package sqlite

import (
	"strings"

	"github.com/google/uuid"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
	sqlcommon "github.com/kasuganosora/sqlscope/pkg/datasource/sql"
	"gorm.io/gorm/schema"

	_ "modernc.org/sqlite"
)

// MemoryURL names a fresh in-memory database.
const MemoryURL = "sqlite:///:memory:"

// SQLiteDialect implements sql.Dialect for SQLite on the pure-Go
// modernc.org/sqlite driver.
type SQLiteDialect struct{}

var (
	_ sqlcommon.Dialect   = (*SQLiteDialect)(nil)
	_ sqlcommon.PoolTuner = (*SQLiteDialect)(nil)
)

func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Schemes() []string { return []string{"sqlite"} }

// BuildDSN maps "sqlite:///app.db" to the file path and "sqlite://" or
// "sqlite:///:memory:" to a private shared-cache memory database, so every
// pooled connection of one factory sees the same data.
func (d *SQLiteDialect) BuildDSN(u *datasource.URL, _ datasource.PoolConfig) (string, error) {
	path, err := u.FilePath()
	if err != nil {
		return "", err
	}
	if path == ":memory:" {
		return "file:" + uuid.NewString() + "?mode=memory&cache=shared", nil
	}
	if u.RawQuery != "" {
		return "file:" + path + "?" + u.RawQuery, nil
	}
	return path, nil
}

// TunePool keeps in-memory connections alive: the database disappears with
// its last connection.
func (d *SQLiteDialect) TunePool(u *datasource.URL, pool datasource.PoolConfig) datasource.PoolConfig {
	if path, err := u.FilePath(); err == nil && path == ":memory:" {
		pool.ConnMaxLifetime = 0
		pool.ConnMaxIdleTime = 0
		if pool.MaxIdleConns < 1 {
			pool.MaxIdleConns = 1
		}
	}
	return pool
}

func (d *SQLiteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *SQLiteDialect) Placeholder(n int) string {
	return "?"
}

// InitStatements enables foreign key enforcement, which SQLite leaves off
// per connection by default.
func (d *SQLiteDialect) InitStatements() []string {
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
}

func (d *SQLiteDialect) DataTypeOf(field *schema.Field) string {
	switch field.DataType {
	case schema.Bool:
		return "numeric"
	case schema.Int, schema.Uint:
		if field.AutoIncrement {
			return "integer PRIMARY KEY AUTOINCREMENT"
		}
		return "integer"
	case schema.Float:
		return "real"
	case schema.String:
		return "text"
	case schema.Time:
		return "datetime"
	case schema.Bytes:
		return "blob"
	default:
		return string(field.DataType)
	}
}

func (d *SQLiteDialect) SupportsReturning() bool { return false }
