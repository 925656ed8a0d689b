// Package providers registers the framework's built-in service providers.
//
//	manager := container.NewManager(providers.NewRegistry())
//	manager.Register("cache", container.NewServiceConfig("cache", map[string]any{
//		"service_provider": providers.CacheEphemeral,
//	}))
package providers
