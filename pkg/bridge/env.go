// Package bridge implements hatn's synchronous-looking JSON-in/JSON-out
// facade: it routes a (service, method) pair to an in-process handler,
// builds the handler's task context from a named (multi-tenant) env,
// and marshals/unmarshals its JSON payload through a per-message-type
// builder registry, per spec.md §4.5.
//
// Grounded on cuemby-warren/pkg/api/interceptor.go's method-name
// routing and cmd/warren/apply.go's generic "decode into a typed
// envelope, dispatch on Kind" manifest pattern, generalized from a YAML
// CLI manifest into the bridge's JSON request/response envelope.
package bridge

import (
	"sync"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
)

// Env is one named, multi-tenant environment: whatever a handler needs
// beyond the request body itself (a *db.DB handle, logger fields,
// config). The bridge treats it as opaque.
type Env struct {
	Name  string
	Value any
}

// EnvRegistry holds named envs plus a default, falling back to the
// default when a requested name is absent per spec.md §4.5's contract.
type EnvRegistry struct {
	mu      sync.RWMutex
	envs    map[string]*Env
	defName string
}

// NewEnvRegistry creates a registry whose default env is defaultEnv.
func NewEnvRegistry(defaultEnv *Env) *EnvRegistry {
	r := &EnvRegistry{envs: make(map[string]*Env)}
	r.envs[defaultEnv.Name] = defaultEnv
	r.defName = defaultEnv.Name
	return r
}

// Register adds or replaces a named env.
func (r *EnvRegistry) Register(env *Env) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs[env.Name] = env
}

// Resolve returns the named env, or the default env if name is empty or
// unknown -- never an error, per spec.md §4.5: "a missing env falls
// back to the default env".
func (r *EnvRegistry) Resolve(name string) *Env {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name != "" {
		if e, ok := r.envs[name]; ok {
			return e
		}
	}
	return r.envs[r.defName]
}

// UnknownBridgeService and UnknownBridgeMessage are the bridge's two
// resolution failure modes, per spec.md §4.5's contract.
func UnknownBridgeService(service string) error {
	return herr.New(herr.InvalidInput, "unknown bridge service: "+service)
}

func UnknownBridgeMessage(messageType string) error {
	return herr.New(herr.InvalidInput, "unknown bridge message type: "+messageType)
}
