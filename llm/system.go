package llm

import (
	"fmt"
	"sync"
)

// The system-wide router holds adapters built from system credentials. It is
// one specific Router value initialized once at process start; user-scoped
// routers are constructed per request context and never touch it. It owns no
// unmanaged resources beyond its adapters' connection clients, which
// CloseSystem releases at shutdown.

var (
	systemMu     sync.Mutex
	systemRouter *Router
)

// InitSystem installs the system-wide router. Calling it twice is a
// programming error and fails rather than silently replacing live adapters.
func InitSystem(r *Router) error {
	systemMu.Lock()
	defer systemMu.Unlock()
	if systemRouter != nil {
		return fmt.Errorf("system router already initialized")
	}
	systemRouter = r
	return nil
}

// System returns the system-wide router, or nil before InitSystem.
func System() *Router {
	systemMu.Lock()
	defer systemMu.Unlock()
	return systemRouter
}

// CloseSystem closes the system router's adapters and clears it. Safe to call
// when no system router was installed.
func CloseSystem() error {
	systemMu.Lock()
	defer systemMu.Unlock()
	if systemRouter == nil {
		return nil
	}
	err := systemRouter.Close()
	systemRouter = nil
	return err
}
