// Package container provides the service manager: a registry of named
// services that are created lazily from configuration.
//
// # Configuration
//
// Every service is described by a ServiceConfig, usually one section of the
// services file:
//
//	[cache]
//	service_provider = "cache.redis"
//	addr = "localhost:6379"
//
// The service_provider key names a constructor in the ProviderRegistry; a
// service_factory key names a Factory instead. register_service_as changes
// the name the section is registered under and register_service_shared =
// false makes every Get return a fresh instance.
//
// # Resolving
//
//	reg := container.NewProviderRegistry()
//	reg.Provide("cache.redis", func() any { return &cache.Redis{} })
//
//	m := container.NewManager(reg, container.WithLogger(logger))
//	_ = m.RegisterConfig(cfg)
//
//	c, err := container.Resolve[cache.Cache](m, "cache")
//
// Before an instance is returned the manager hands itself to ManagerAware
// services, checks the config against ConfigRules, then calls Configure.
//
// # Test doubles
//
//	revert := m.TempBind("cache", cache.NewEphemeral())
//	defer revert()
package container
