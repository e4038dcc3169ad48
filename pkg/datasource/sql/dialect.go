package sql

import (
	"github.com/kasuganosora/sqlscope/pkg/datasource"

	"gorm.io/gorm/schema"
)

// Dialect encapsulates database-engine-specific behavior.
type Dialect interface {
	// DriverName returns the database/sql driver name ("sqlite", "mysql" or "postgres")
	DriverName() string

	// Schemes returns the URL backends this dialect serves
	Schemes() []string

	// BuildDSN constructs the driver-specific connection string from the URL
	BuildDSN(u *datasource.URL, pool datasource.PoolConfig) (string, error)

	// QuoteIdentifier wraps a table/column name in dialect-specific quoting
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for the n-th parameter (1-based)
	Placeholder(n int) string

	// InitStatements returns statements run on every new physical connection
	InitStatements() []string

	// DataTypeOf maps a gorm schema field to a column type
	DataTypeOf(field *schema.Field) string

	// SupportsReturning reports whether INSERT/UPDATE/DELETE ... RETURNING works
	SupportsReturning() bool
}

// PoolTuner is implemented by dialects that need to override pool settings
// for some URLs, e.g. keeping in-memory SQLite connections alive.
type PoolTuner interface {
	TunePool(u *datasource.URL, pool datasource.PoolConfig) datasource.PoolConfig
}
