package sdk

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
)

// EmitFunc delivers one content delta. It returns an error when the consumer
// has gone away; clients must stop generating when it does.
type EmitFunc func(delta string) error

// Result is what a client reports once generation ends.
type Result struct {
	ID           string
	FinishReason canonical.FinishReason
	Usage        *canonical.Usage
}

// Client is an in-process model client.
type Client interface {
	// Generate produces the reply for req, passing each piece to emit in
	// order.
	Generate(ctx context.Context, req *canonical.Request, emit EmitFunc) (*Result, error)
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Factory builds a client from the provider configuration.
type Factory func(cfg providers.Config) (Client, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		"echo": newEcho,
	}
)

// Register makes a client factory available under name, replacing any
// previous registration.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Names returns the registered client names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// FactoryError reports an unknown client name.
type FactoryError struct {
	Name string
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("sdk client %q is not registered", e.Name)
}
