package database

import (
	"sync"

	"github.com/kasuganosora/sqlscope/pkg/datasource"
	"github.com/kasuganosora/sqlscope/pkg/datasource/badger"
	"github.com/kasuganosora/sqlscope/pkg/datasource/mysql"
	"github.com/kasuganosora/sqlscope/pkg/datasource/postgresql"
	"github.com/kasuganosora/sqlscope/pkg/datasource/sqlite"
)

var (
	defaultRegistry     *datasource.Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry holding all built-in backends.
func DefaultRegistry() *datasource.Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry 创建注册了所有内置后端的注册表
func NewRegistry() *datasource.Registry {
	registry := datasource.NewRegistry()

	// 注册 SQL 后端
	mustRegister(registry, sqlite.NewOpener())
	mustRegister(registry, mysql.NewOpener())
	mustRegister(registry, postgresql.NewOpener())

	// 注册 KV 后端
	mustRegister(registry, badger.NewOpener())
	return registry
}

func mustRegister(registry *datasource.Registry, opener datasource.Opener) {
	if err := registry.Register(opener); err != nil {
		panic(err)
	}
}
