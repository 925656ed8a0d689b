package container_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/validation"
)

// ── fixtures ─────────────────────────────────────────────────────────────────

type greeter interface{ Greet() string }

type helloService struct {
	greeting string
	closed   bool
}

func (s *helloService) Configure(cfg *container.ServiceConfig) error {
	s.greeting = cfg.String("greeting", "hello")
	return nil
}

func (s *helloService) Greet() string { return s.greeting }

func (s *helloService) Close() error {
	s.closed = true
	return nil
}

type plainService struct{}

func (plainService) Configure(*container.ServiceConfig) error { return nil }

type notAService struct{}

type failingService struct{}

func (failingService) Configure(*container.ServiceConfig) error { return errors.New("boom") }

type strictService struct{ helloService }

func (*strictService) ConfigRules() validation.Rules {
	return validation.Rules{"greeting": "required|min:2"}
}

type awareService struct {
	helloService
	manager *container.Manager
}

func (s *awareService) SetServiceManager(m *container.Manager) { s.manager = m }

var built atomic.Int64

func newRegistry() *container.ProviderRegistry {
	reg := container.NewProviderRegistry()
	reg.Provide("hello", func() any {
		built.Add(1)
		return &helloService{}
	})
	reg.Provide("plain", func() any { return plainService{} })
	reg.Provide("bogus", func() any { return &notAService{} })
	reg.Provide("failing", func() any { return failingService{} })
	reg.Provide("strict", func() any { return &strictService{} })
	reg.Provide("aware", func() any { return &awareService{} })
	reg.ProvideFactory("hello.factory", container.FactoryFunc(func(cfg *container.ServiceConfig) (any, error) {
		if cfg.Bool("fail", false) {
			return nil, errors.New("factory refused")
		}
		return &helloService{greeting: "from factory"}, nil
	}))
	return reg
}

func helloConfig(name string, extra map[string]any) *container.ServiceConfig {
	values := map[string]any{container.KeyProvider: "hello"}
	for k, v := range extra {
		values[k] = v
	}
	return container.NewServiceConfig(name, values)
}

// ── Get ──────────────────────────────────────────────────────────────────────

func TestManager_GetConfiguresService(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", map[string]any{"greeting": "hi"})))

	svc, err := container.Resolve[greeter](m, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "hi", svc.Greet())
}

func TestManager_GetUnknownService(t *testing.T) {
	m := container.NewManager(newRegistry())
	_, err := m.Get("missing")
	assert.ErrorIs(t, err, container.ErrServiceNotRegistered)
}

func TestManager_SharedIsSingleton(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", nil)))

	a, err := m.Get("greeter")
	require.NoError(t, err)
	b, err := m.Get("greeter")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.True(t, m.Resolved("greeter"))
	assert.True(t, m.IsShared("greeter"))
}

func TestManager_NotSharedIsFreshEveryTime(t *testing.T) {
	tests := map[string]func(m *container.Manager) error{
		"option": func(m *container.Manager) error {
			return m.Register("greeter", helloConfig("greeter", nil), container.Shared(false))
		},
		"config key": func(m *container.Manager) error {
			return m.Register("greeter", helloConfig("greeter", map[string]any{container.KeyShared: "false"}))
		},
	}
	for name, register := range tests {
		t.Run(name, func(t *testing.T) {
			m := container.NewManager(newRegistry())
			require.NoError(t, register(m))

			a, err := m.Get("greeter")
			require.NoError(t, err)
			b, err := m.Get("greeter")
			require.NoError(t, err)
			assert.NotSame(t, a, b)
			assert.False(t, m.IsShared("greeter"))
		})
	}
}

func TestManager_SharedBuiltOnceUnderConcurrency(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", nil)))

	before := built.Load()
	var wg sync.WaitGroup
	results := make([]any, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.Get("greeter")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), built.Load()-before)
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestManager_Factory(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("made", container.NewServiceConfig("made", map[string]any{
		container.KeyFactory: "hello.factory",
		"greeting":           "configured",
	})))

	svc, err := container.Resolve[greeter](m, "made")
	require.NoError(t, err)
	assert.Equal(t, "configured", svc.Greet(), "factory output is still configured")

	require.NoError(t, m.Register("refused", container.NewServiceConfig("refused", map[string]any{
		container.KeyFactory: "hello.factory",
		"fail":               true,
	})))
	_, err = m.Get("refused")
	assert.ErrorContains(t, err, "factory refused")
}

// ── Failures ─────────────────────────────────────────────────────────────────

func TestManager_ResolutionErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
		opts []container.RegisterOption
		want error
	}{
		{"no provider key", map[string]any{"x": 1}, nil, container.ErrNoProvider},
		{"unknown provider", map[string]any{container.KeyProvider: "nope"}, nil, container.ErrProviderNotFound},
		{"unknown factory", map[string]any{container.KeyFactory: "nope"}, nil, container.ErrProviderNotFound},
		{"not a service", map[string]any{container.KeyProvider: "bogus"}, nil, container.ErrServiceWrongInterface},
		{"missing expected interface", map[string]any{container.KeyProvider: "plain"},
			[]container.RegisterOption{container.Expect[greeter]()}, container.ErrServiceWrongInterface},
		{"invalid config", map[string]any{container.KeyProvider: "strict", "greeting": "x"}, nil, container.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := container.NewManager(newRegistry())
			require.NoError(t, m.Register("svc", container.NewServiceConfig("svc", tt.cfg), tt.opts...))
			_, err := m.Get("svc")
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, m.Resolved("svc"))
		})
	}
}

func TestManager_ConfigureErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := container.NewManager(newRegistry(), container.WithLogger(zap.New(core)))
	require.NoError(t, m.Register("svc", container.NewServiceConfig("svc", map[string]any{container.KeyProvider: "failing"})))

	_, err := m.Get("svc")
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, logs.FilterMessage("service configure failed").Len())
}

func TestManager_ResolveWrongType(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("plain", container.NewServiceConfig("plain", map[string]any{container.KeyProvider: "plain"})))

	_, err := container.Resolve[greeter](m, "plain")
	assert.ErrorIs(t, err, container.ErrServiceWrongType)
	assert.Panics(t, func() { container.MustResolve[greeter](m, "plain") })
}

func TestManager_RegisterTwice(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", nil)))
	assert.ErrorIs(t, m.Register("greeter", helloConfig("greeter", nil)), container.ErrServiceAlreadyRegistered)
}

// ── Rebinding ────────────────────────────────────────────────────────────────

func TestManager_RegisterConfigHonoursRegisterAs(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.RegisterConfig(helloConfig("section", map[string]any{container.KeyRegisterAs: "alias"})))
	require.NoError(t, m.RegisterConfig(helloConfig("plainname", nil)))

	assert.Equal(t, []string{"alias", "plainname"}, m.Names())
}

func TestManager_ReBindDropsInstance(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", map[string]any{"greeting": "one"})))
	first, err := container.Resolve[greeter](m, "greeter")
	require.NoError(t, err)

	m.ReBind("greeter", helloConfig("greeter", map[string]any{"greeting": "two"}))
	second, err := container.Resolve[greeter](m, "greeter")
	require.NoError(t, err)

	assert.Equal(t, "one", first.Greet())
	assert.Equal(t, "two", second.Greet())
	cfg, ok := m.Config("greeter")
	require.True(t, ok)
	assert.Equal(t, "two", cfg.String("greeting", ""))
}

func TestManager_TempBindReverts(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", map[string]any{"greeting": "real"})))

	fake := &helloService{greeting: "fake"}
	revert := m.TempBind("greeter", fake)

	got, err := m.Get("greeter")
	require.NoError(t, err)
	assert.Same(t, fake, got)

	revert()
	revert()

	real, err := container.Resolve[greeter](m, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "real", real.Greet())
}

func TestManager_TempBindUnknownNameIsRemoved(t *testing.T) {
	m := container.NewManager(newRegistry())
	revert := m.TempBind("double", "anything")
	assert.True(t, m.Exists("double"))
	revert()
	assert.False(t, m.Exists("double"))
}

func TestManager_BindAndUnRegister(t *testing.T) {
	m := container.NewManager(newRegistry())
	m.Bind("value", 42)

	v, err := container.Resolve[int](m, "value")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	assert.True(t, m.UnRegister("value"))
	assert.False(t, m.UnRegister("value"))
	_, err = m.Get("value")
	assert.ErrorIs(t, err, container.ErrServiceNotRegistered)
}

// ── Hooks ────────────────────────────────────────────────────────────────────

func TestManager_ManagerAware(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("aware", container.NewServiceConfig("aware", map[string]any{container.KeyProvider: "aware"})))

	svc, err := container.Resolve[*awareService](m, "aware")
	require.NoError(t, err)
	require.NotNil(t, svc.manager)
	assert.Same(t, m.Registry(), svc.manager.Registry())

	again, err := container.Resolve[*awareService](svc.manager, "aware")
	require.NoError(t, err, "a built service can look itself up afterwards")
	assert.Same(t, svc, again)
}

// dependentService resolves the service named by its "needs" option while
// being configured.
type dependentService struct {
	manager *container.Manager
}

func (s *dependentService) SetServiceManager(m *container.Manager) { s.manager = m }

func (s *dependentService) Configure(cfg *container.ServiceConfig) error {
	for _, dep := range cfg.List("needs", nil) {
		if _, err := s.manager.Get(dep); err != nil {
			return err
		}
	}
	return nil
}

func TestManager_CircularDependency(t *testing.T) {
	tests := []struct {
		name   string
		shared bool
		needs  map[string]string
		want   string
	}{
		{"self", true, map[string]string{"a": "a"}, "a -> a"},
		{"pair", true, map[string]string{"a": "b", "b": "a"}, "a -> b -> a"},
		{"triangle", true, map[string]string{"a": "b", "b": "c", "c": "a"}, "a -> b -> c -> a"},
		{"pair not shared", false, map[string]string{"a": "b", "b": "a"}, "a -> b -> a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := container.NewProviderRegistry()
			reg.Provide("dependent", func() any { return &dependentService{} })
			m := container.NewManager(reg)
			for name, dep := range tt.needs {
				require.NoError(t, m.Register(name, container.NewServiceConfig(name, map[string]any{
					container.KeyProvider: "dependent",
					container.KeyShared:   tt.shared,
					"needs":               dep,
				})))
			}

			done := make(chan error, 1)
			go func() {
				_, err := m.Get("a")
				done <- err
			}()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, container.ErrCircularDependency)
				assert.ErrorContains(t, err, tt.want)
			case <-time.After(2 * time.Second):
				t.Fatal("Get blocked on a dependency cycle")
			}
		})
	}
}

func TestManager_SharedDependencyIsNotACycle(t *testing.T) {
	reg := container.NewProviderRegistry()
	reg.Provide("dependent", func() any { return &dependentService{} })
	m := container.NewManager(reg)
	for name, needs := range map[string]string{"a": "b,c", "b": "c", "c": ""} {
		require.NoError(t, m.Register(name, container.NewServiceConfig(name, map[string]any{
			container.KeyProvider: "dependent",
			"needs":               needs,
		})))
	}

	_, err := m.Get("a")
	require.NoError(t, err)
	assert.True(t, m.Resolved("c"))
}

func TestManager_OnResolved(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", nil)))

	var names []string
	m.OnResolved(func(name string, _ any) { names = append(names, name) })

	_, _ = m.Get("greeter")
	_, _ = m.Get("greeter")
	assert.Equal(t, []string{"greeter"}, names)
}

func TestManager_Close(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", nil)))
	bound := &helloService{}
	m.Bind("bound", bound)

	svc, err := container.Resolve[*helloService](m, "greeter")
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background()))
	assert.True(t, svc.closed)
	assert.False(t, bound.closed)
	assert.False(t, m.Resolved("greeter"))
	assert.True(t, m.Exists("greeter"))
}

func TestManager_CloseHonoursContext(t *testing.T) {
	m := container.NewManager(newRegistry())
	require.NoError(t, m.Register("greeter", helloConfig("greeter", nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Close(ctx), context.Canceled)
}

func ExampleManager() {
	reg := container.NewProviderRegistry()
	reg.Provide("hello", func() any { return &helloService{} })

	m := container.NewManager(reg)
	_ = m.Register("greeter", container.NewServiceConfig("greeter", map[string]any{
		"service_provider": "hello",
		"greeting":         "hey",
	}))

	g, _ := container.Resolve[greeter](m, "greeter")
	fmt.Println(g.Greet())
	// Output: hey
}
