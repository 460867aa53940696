// Package bus implements the subsystem supervisor and event bus: module
// registration, dependency-ordered lifecycle management, health/readiness
// tracking, and a synchronous-delivery-in-subscriber-order publish/subscribe
// channel. It generalizes the teacher's system/core package (Registry,
// LifecycleManager, DependencyManager, HealthMonitor, Bus, Engine facade)
// from its blockchain-module vocabulary to home-automation subsystems.
package bus

import (
	"context"

	"github.com/gorilla/mux"
)

// ServiceModule is the minimal capability every subsystem registers with.
// Everything else (HTTP routes, socket events, init/destroy hooks) is an
// optional capability interface a module may additionally implement.
type ServiceModule interface {
	Name() string
	Domain() string
}

// Initializable is implemented by modules with async setup work to run
// before they're considered started (device discovery, cache warm-up).
type Initializable interface {
	Init(ctx context.Context) error
}

// Destroyable is implemented by modules that hold resources needing
// explicit teardown (timers, open connections) on shutdown.
type Destroyable interface {
	Destroy(ctx context.Context) error
}

// HasHTTPRoutes is implemented by modules that expose their own HTTP
// surface, registered onto the gateway's router at startup.
type HasHTTPRoutes interface {
	RegisterRoutes(router *mux.Router)
}

// HasSocketEvents is implemented by modules that publish or subscribe to
// the realtime channel under their own event names.
type HasSocketEvents interface {
	RegisterEvents(b *Bus)
}

// DependsOn is implemented by modules with explicit start-order
// dependencies on other named modules.
type DependsOn interface {
	DependsOn() []string
}
