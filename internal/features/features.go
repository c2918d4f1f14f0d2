package features

import "sync"

// Flag names.
const (
	// FeatureCacheEnabled caches upstream promotion payloads between
	// refresh ticks.
	FeatureCacheEnabled = "cache_enabled"
	// FeatureEventHooksEnabled enables the async event hooks.
	FeatureEventHooksEnabled = "event_hooks_enabled"
	// FeatureIdentityDiff switches the refresh loop from size-based to
	// identity-keyed diffing. Off by default: size-based diffing is the
	// compatibility behavior.
	FeatureIdentityDiff = "identity_diff"
)

// Flag is one feature flag.
type Flag struct {
	Name        string
	Enabled     bool
	Description string
}

// Manager holds the flag registry.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewManager creates an empty flag registry.
func NewManager() *Manager {
	return &Manager{flags: make(map[string]*Flag)}
}

// Register adds a flag with its default state.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &Flag{Name: name, Enabled: enabled, Description: description}
}

// IsEnabled reports whether a flag is on. Unknown flags are off.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, ok := m.flags[name]
	return ok && flag.Enabled
}

// Enable turns a registered flag on.
func (m *Manager) Enable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, ok := m.flags[name]; ok {
		flag.Enabled = true
	}
}

// Disable turns a registered flag off.
func (m *Manager) Disable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, ok := m.flags[name]; ok {
		flag.Enabled = false
	}
}

// All returns a copy of the registry.
func (m *Manager) All() map[string]Flag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Flag, len(m.flags))
	for name, flag := range m.flags {
		out[name] = *flag
	}
	return out
}
