package providers

import (
	"github.com/km-arc/cubex/framework/cache"
	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/database"
	"github.com/km-arc/cubex/framework/queue"
)

// Provider keys of the framework's built-in services, as used in the
// service_provider option of a service config.
const (
	CacheEphemeral = "cache.ephemeral"
	CacheRedis     = "cache.redis"
	DatabaseSQL    = "database.sql"
	QueueDatabase  = "queue.database"
	QueueSharded   = "queue.sharded"
)

// NewRegistry returns a registry holding every framework provider.
func NewRegistry() *container.ProviderRegistry {
	reg := container.NewProviderRegistry()
	Register(reg)
	return reg
}

// Register adds the framework providers to reg. Application providers
// registered afterwards under the same key replace them.
func Register(reg *container.ProviderRegistry) {
	registerCache(reg)
	registerDatabase(reg)
	registerQueue(reg)
}

// ── Cache ────────────────────────────────────────────────────────────────────

// registerCache adds the cache providers.
//
// Provided services implement cache.Cache:
//   - "cache.ephemeral" → *cache.Ephemeral  (process-local LRU)
//   - "cache.redis"     → *cache.Redis      (connects in Configure)
func registerCache(reg *container.ProviderRegistry) {
	reg.Provide(CacheEphemeral, func() any { return cache.NewEphemeral() })
	reg.Provide(CacheRedis, func() any { return cache.NewRedis() })
}

// ── Database ─────────────────────────────────────────────────────────────────

// registerDatabase adds the SQL connection provider.
//
// Provided services:
//   - "database.sql" → *database.Connection  (opens on first query)
//
// Connections share handles through a *database.Pool bound under
// database.PoolService, when one is bound.
func registerDatabase(reg *container.ProviderRegistry) {
	reg.Provide(DatabaseSQL, func() any { return database.NewConnection() })
}

// ── Queue ────────────────────────────────────────────────────────────────────

// registerQueue adds the queue providers.
//
// Provided services implement queue.Queue:
//   - "queue.database" → *queue.Database  (table on a database.sql service)
//   - "queue.sharded"  → *queue.Sharded   (round-robin over other queues)
func registerQueue(reg *container.ProviderRegistry) {
	reg.Provide(QueueDatabase, func() any { return queue.NewDatabase() })
	reg.Provide(QueueSharded, func() any { return queue.NewSharded() })
}
