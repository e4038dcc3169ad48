package sql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kasuganosora/sqlscope/pkg/api"

	"gorm.io/gorm"
	"gorm.io/gorm/callbacks"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"
)

var numericPlaceholder = regexp.MustCompile(`\$(\d+)`)

// dialector 把会话的专用连接封装为 GORM 驱动
type dialector struct {
	dialect Dialect
	conn    *sql.Conn
}

// Name 返回数据库方言名称
func (d *dialector) Name() string {
	return d.dialect.DriverName()
}

// Initialize 注册默认回调并绑定连接
func (d *dialector) Initialize(db *gorm.DB) error {
	cfg := &callbacks.Config{}
	if d.dialect.SupportsReturning() {
		cfg.CreateClauses = []string{"INSERT", "VALUES", "ON CONFLICT", "RETURNING"}
		cfg.UpdateClauses = []string{"UPDATE", "SET", "FROM", "WHERE", "RETURNING"}
		cfg.DeleteClauses = []string{"DELETE", "FROM", "WHERE", "RETURNING"}
	}
	callbacks.RegisterDefaultCallbacks(db, cfg)
	db.ConnPool = d.conn
	return nil
}

// Migrator 提供数据库迁移工具
func (d *dialector) Migrator(db *gorm.DB) gorm.Migrator {
	return migrator.Migrator{Config: migrator.Config{
		DB:        db,
		Dialector: d,
	}}
}

// DataTypeOf 确定字段的数据类型
func (d *dialector) DataTypeOf(field *schema.Field) string {
	return d.dialect.DataTypeOf(field)
}

// DefaultValueOf 提供字段的默认值
func (d *dialector) DefaultValueOf(field *schema.Field) clause.Expression {
	return clause.Expr{SQL: "DEFAULT"}
}

// BindVarTo 写入第 n 个参数的占位符
func (d *dialector) BindVarTo(writer clause.Writer, stmt *gorm.Statement, v interface{}) {
	writer.WriteString(d.dialect.Placeholder(len(stmt.Vars)))
}

// QuoteTo 为标识符加引号, "schema.table" 分段处理
func (d *dialector) QuoteTo(writer clause.Writer, str string) {
	for i, part := range strings.Split(str, ".") {
		if i > 0 {
			writer.WriteByte('.')
		}
		writer.WriteString(d.dialect.QuoteIdentifier(part))
	}
}

// Explain 格式化带有变量的 SQL 语句
func (d *dialector) Explain(sql string, vars ...interface{}) string {
	if d.dialect.Placeholder(1) == "?" {
		return logger.ExplainSQL(sql, nil, `'`, vars...)
	}
	return logger.ExplainSQL(sql, numericPlaceholder, `'`, vars...)
}

// gormWriter routes gorm's log output to an api.Logger.
type gormWriter struct {
	log func(format string, args ...interface{})
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log(format, args...)
}

func newGormLogger(l api.Logger, debug bool) logger.Interface {
	level := logger.Warn
	log := l.Warn
	if debug {
		level = logger.Info
		log = l.Info
	}
	return logger.New(gormWriter{log: log}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// ORM returns a gorm handle bound to this session's connection and to the
// open transaction, if any. The handle is built once per session and must
// not be used after Close.
func (s *Session) ORM(ctx context.Context) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errSessionClosed(s.id)
	}
	if s.orm == nil {
		db, err := gorm.Open(&dialector{dialect: s.factory.dialect, conn: s.conn}, &gorm.Config{
			Logger:                 newGormLogger(s.factory.logger, s.factory.cfg.Debug),
			SkipDefaultTransaction: true,
		})
		if err != nil {
			return nil, api.NewError(api.ErrCodeInternal, fmt.Sprintf("initialize orm for session %s", s.id), err)
		}
		s.orm = db
	}

	db := s.orm.WithContext(ctx)
	if s.tx != nil {
		db.Statement.ConnPool = s.tx
	}
	return db, nil
}
