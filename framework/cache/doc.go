// Package cache provides the cache service providers: cache.ephemeral, a
// process-local LRU map, and cache.redis. Both implement Cache and are
// configured from a service config section.
package cache
