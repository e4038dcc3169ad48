// Package badger serves sessions over an embedded Badger key-value store.
// A session wraps one read-write transaction.
package badger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
)

// Options store tuning taken from the URL query, e.g.
// "badger:///var/lib/kv?sync_writes=true&compression=zstd".
type Options struct {
	// Dir directory for storing data files; empty runs in memory
	Dir string

	// SyncWrites if true, syncs writes to disk immediately
	SyncWrites bool

	// ValueThreshold values larger than this are stored in value log
	ValueThreshold int64

	// NumMemtables number of in-memory tables
	NumMemtables int

	// Compression none, snappy or zstd
	Compression options.CompressionType
}

// InMemory reports whether the store keeps no files.
func (o Options) InMemory() bool {
	return o.Dir == ""
}

func defaultOptions() Options {
	return Options{
		ValueThreshold: 1 << 10, // 1KB
		NumMemtables:   5,
		Compression:    options.Snappy,
	}
}

// parseOptions 从 URL 解析存储选项
func parseOptions(u *datasource.URL) (Options, error) {
	dir, err := u.FilePath()
	if err != nil {
		return Options{}, err
	}

	opts := defaultOptions()
	if dir != ":memory:" {
		opts.Dir = dir
	}

	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[len(values)-1]
		switch key {
		case "sync_writes":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Options{}, invalidOption(key, value, err)
			}
			opts.SyncWrites = b
		case "value_threshold":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n <= 0 {
				return Options{}, invalidOption(key, value, err)
			}
			opts.ValueThreshold = n
		case "num_memtables":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return Options{}, invalidOption(key, value, err)
			}
			opts.NumMemtables = n
		case "compression":
			switch strings.ToLower(value) {
			case "none", "":
				opts.Compression = options.None
			case "snappy":
				opts.Compression = options.Snappy
			case "zstd":
				opts.Compression = options.ZSTD
			default:
				return Options{}, invalidOption(key, value, nil)
			}
		default:
			return Options{}, api.NewConfigurationError(fmt.Sprintf("unknown badger option %q", key), nil)
		}
	}
	return opts, nil
}

func invalidOption(key, value string, cause error) error {
	return api.NewConfigurationError(fmt.Sprintf("invalid badger option %s=%q", key, value), cause)
}

// badgerOptions builds the store options.
func (o Options) badgerOptions(logger badger.Logger) badger.Options {
	var opts badger.Options
	if o.InMemory() {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(o.Dir)
	}
	return opts.
		WithSyncWrites(o.SyncWrites).
		WithValueThreshold(o.ValueThreshold).
		WithNumMemtables(o.NumMemtables).
		WithCompression(o.Compression).
		WithLogger(logger)
}

// storeLogger adapts api.Logger to badger.Logger. Badger reports routine
// compaction progress at info level, so it is logged at debug.
type storeLogger struct {
	logger api.Logger
	debug  bool
}

func (l storeLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l storeLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l storeLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l storeLogger) Debugf(format string, args ...interface{}) {
	if l.debug {
		l.logger.Debug("badger: "+strings.TrimSuffix(format, "\n"), args...)
	}
}
