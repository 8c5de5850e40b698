package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bastionhq/bastionctl/internal/config"
)

func TestBuildSQLiteDSN(t *testing.T) {
	t.Run("MemoryPassthrough", func(t *testing.T) {
		cfg := &config.DatabaseConfig{Path: ":memory:"}
		assert.Equal(t, ":memory:", buildSQLiteDSN(cfg))

		cfg = &config.DatabaseConfig{Path: "file::memory:?cache=shared"}
		assert.Equal(t, "file::memory:?cache=shared", buildSQLiteDSN(cfg))
	})

	t.Run("FileWithPragmas", func(t *testing.T) {
		cfg := &config.DatabaseConfig{
			Path:            "/tmp/bastionctl.db",
			BusyTimeout:     5000,
			JournalMode:     "WAL",
			SynchronousMode: "NORMAL",
			CacheSize:       -64000,
			ForeignKeys:     true,
		}

		dsn := buildSQLiteDSN(cfg)
		assert.Contains(t, dsn, "/tmp/bastionctl.db?")
		assert.Contains(t, dsn, "_busy_timeout=5000")
		assert.Contains(t, dsn, "_journal_mode=WAL")
		assert.Contains(t, dsn, "_synchronous=NORMAL")
		assert.Contains(t, dsn, "_cache_size=-64000")
		assert.Contains(t, dsn, "_foreign_keys=true")
		assert.Contains(t, dsn, "cache=shared")
	})

	t.Run("ZeroCacheSizeOmitted", func(t *testing.T) {
		cfg := &config.DatabaseConfig{
			Path:            "/tmp/bastionctl.db",
			BusyTimeout:     5000,
			JournalMode:     "WAL",
			SynchronousMode: "NORMAL",
		}

		assert.NotContains(t, buildSQLiteDSN(cfg), "_cache_size")
	})
}
