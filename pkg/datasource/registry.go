package datasource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/session"
)

// Factory is a configured session factory that owns backend resources.
type Factory interface {
	session.Factory
	// Backend returns the backend name, e.g. "sqlite"
	Backend() string
	// Close releases the connection pool or store
	Close() error
}

// Opener configures factories for one backend.
type Opener interface {
	// Schemes returns the URL backends this opener accepts
	Schemes() []string
	// Open validates cfg and returns a factory; it must not connect
	Open(cfg *Config, logger api.Logger) (Factory, error)
}

// ==================== 工厂注册表 ====================

// Registry maps URL backends to openers.
type Registry struct {
	openers map[string]Opener
	mu      sync.RWMutex
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		openers: make(map[string]Opener),
	}
}

// Register adds opener under each of its schemes. Registering a scheme
// twice is an error and leaves the registry unchanged.
func (r *Registry) Register(opener Opener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, scheme := range opener.Schemes() {
		if _, exists := r.openers[scheme]; exists {
			return fmt.Errorf("backend %s already registered", scheme)
		}
	}
	for _, scheme := range opener.Schemes() {
		r.openers[scheme] = opener
	}
	return nil
}

// Get 获取 scheme 对应的 opener
func (r *Registry) Get(scheme string) (Opener, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	opener, ok := r.openers[scheme]
	return opener, ok
}

// Open parses cfg.URL and hands cfg to the matching opener. Malformed URLs
// and unknown backends fail with configuration errors.
func (r *Registry) Open(cfg *Config, logger api.Logger) (Factory, error) {
	if cfg == nil {
		return nil, api.NewConfigurationError("database config is nil", nil)
	}
	u, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opener, ok := r.Get(u.Backend)
	if !ok {
		return nil, api.NewError(api.ErrCodeUnsupportedBackend,
			fmt.Sprintf("unsupported database backend %q (supported: %v)", u.Backend, r.Schemes()), nil)
	}
	if logger == nil {
		logger = api.NewNoOpLogger()
	}
	return opener.Open(cfg, logger)
}

// Schemes 列出所有已注册的 scheme（已排序）
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.openers))
	for s := range r.openers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}
