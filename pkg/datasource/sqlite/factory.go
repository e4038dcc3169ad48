package sqlite

import (
	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
	sqlcommon "github.com/kasuganosora/sqlscope/pkg/datasource/sql"
)

// NewFactory 创建 SQLite 会话工厂
func NewFactory(cfg *datasource.Config, logger api.Logger) (*sqlcommon.Factory, error) {
	return sqlcommon.NewFactory(cfg, &SQLiteDialect{}, logger)
}

// NewOpener 创建 SQLite opener
func NewOpener() datasource.Opener {
	return sqlcommon.Opener{Dialect: &SQLiteDialect{}}
}
