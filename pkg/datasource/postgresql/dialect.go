package postgresql

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
	sqlcommon "github.com/kasuganosora/sqlscope/pkg/datasource/sql"
	"gorm.io/gorm/schema"

	_ "github.com/lib/pq"
)

const defaultPort = "5432"

// PostgreSQLDialect implements sql.Dialect for PostgreSQL.
type PostgreSQLDialect struct{}

var _ sqlcommon.Dialect = (*PostgreSQLDialect)(nil)

func (d *PostgreSQLDialect) DriverName() string { return "postgres" }

func (d *PostgreSQLDialect) Schemes() []string { return []string{"postgres", "postgresql"} }

// BuildDSN converts the URL into a lib/pq key/value connection string.
// sslmode defaults to disable; other query parameters (search_path,
// application_name, ...) are passed through.
func (d *PostgreSQLDialect) BuildDSN(u *datasource.URL, pool datasource.PoolConfig) (string, error) {
	if u.Host == "" {
		return "", api.NewConfigurationError("postgres url must name a host", nil)
	}

	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	params := map[string]string{
		"host":    u.Hostname(),
		"port":    port,
		"sslmode": "disable",
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		params["dbname"] = db
	}
	if u.User != nil {
		params["user"] = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			params["password"] = pass
		}
	}
	if pool.ConnectTimeout > 0 {
		secs := int(pool.ConnectTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		params["connect_timeout"] = strconv.Itoa(secs)
	}
	for key, values := range u.Query() {
		if len(values) > 0 {
			params[key] = values[len(values)-1]
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, quoteValue(params[k])))
	}
	return strings.Join(parts, " "), nil
}

// quoteValue quotes a key/value connection string value when needed.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (d *PostgreSQLDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *PostgreSQLDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (d *PostgreSQLDialect) InitStatements() []string {
	return nil
}

func (d *PostgreSQLDialect) DataTypeOf(field *schema.Field) string {
	switch field.DataType {
	case schema.Bool:
		return "boolean"
	case schema.Int, schema.Uint:
		if field.AutoIncrement {
			switch {
			case field.Size <= 16:
				return "smallserial"
			case field.Size <= 32:
				return "serial"
			default:
				return "bigserial"
			}
		}
		switch {
		case field.Size <= 16:
			return "smallint"
		case field.Size <= 32:
			return "integer"
		default:
			return "bigint"
		}
	case schema.Float:
		if field.Precision > 0 {
			if field.Scale > 0 {
				return fmt.Sprintf("numeric(%d, %d)", field.Precision, field.Scale)
			}
			return fmt.Sprintf("numeric(%d)", field.Precision)
		}
		return "decimal"
	case schema.String:
		if field.Size > 0 {
			return fmt.Sprintf("varchar(%d)", field.Size)
		}
		return "text"
	case schema.Time:
		if field.Precision > 0 {
			return fmt.Sprintf("timestamptz(%d)", field.Precision)
		}
		return "timestamptz"
	case schema.Bytes:
		return "bytea"
	default:
		return string(field.DataType)
	}
}

func (d *PostgreSQLDialect) SupportsReturning() bool { return true }

// URL builds a postgres URL; handy for assembling one from discrete settings.
func URL(user, password, host string, port int, database string) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + database,
	}
	if port > 0 {
		u.Host = fmt.Sprintf("%s:%d", host, port)
	}
	if user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}
