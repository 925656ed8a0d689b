package container

import "errors"

var (
	// ErrServiceNotRegistered is returned by Get for unknown names.
	ErrServiceNotRegistered = errors.New("service not registered")
	// ErrServiceAlreadyRegistered is returned by Register for taken names.
	ErrServiceAlreadyRegistered = errors.New("service already registered")
	// ErrNoProvider is returned when a config names neither a provider nor a factory.
	ErrNoProvider = errors.New("no service provider configured")
	// ErrProviderNotFound is returned when the provider or factory key is not in the registry.
	ErrProviderNotFound = errors.New("service provider not found")
	// ErrServiceWrongInterface is returned when an instance lacks the expected capability.
	ErrServiceWrongInterface = errors.New("service doesn't satisfy required interface")
	// ErrServiceWrongType is returned by Resolve when the instance is not the requested type.
	ErrServiceWrongType = errors.New("service doesn't satisfy required type")
	// ErrCircularDependency is returned when building a service needs the
	// service itself, directly or through its dependencies.
	ErrCircularDependency = errors.New("circular service dependency")
	// ErrInvalidConfig is returned when a config fails the provider's rules.
	ErrInvalidConfig = errors.New("invalid service config")
)
