package registry

import (
	"sync"

	"github.com/gmondada/mdnsd/internal/errors"
)

// Manager holds the set of service instances currently registered with
// mdnsd, independent of any network interface. The server shell asks
// Manager for a snapshot whenever it needs to (re)build a per-interface
// database — once when an interface first appears, and again every time
// registration changes — rather than Manager knowing about interfaces
// or databases itself.
type Manager struct {
	mu        sync.RWMutex
	hostName  string
	instances map[string]Instance // keyed by instance name + service type
}

// NewManager creates a Manager for the given host name (without the
// "local" suffix, which Build appends).
func NewManager(hostName string) *Manager {
	return &Manager{
		hostName:  hostName,
		instances: make(map[string]Instance),
	}
}

// HostName returns the manager's host name.
func (m *Manager) HostName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hostName
}

func instanceKey(name, serviceType string) string {
	return serviceType + "\x00" + name
}

// Register adds or replaces a service instance. It returns a
// ValidationError if the instance's service type or port is invalid.
func (m *Manager) Register(inst Instance) error {
	if err := validateServiceType(inst.ServiceType); err != nil {
		return err
	}
	if inst.Port == 0 {
		return &errors.ValidationError{Field: "port", Value: "0", Reason: "service instance must have a non-zero port"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[instanceKey(inst.Name, inst.ServiceType)] = inst
	return nil
}

// Unregister removes a service instance, if present.
func (m *Manager) Unregister(name, serviceType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, instanceKey(name, serviceType))
}

// Snapshot returns every currently registered instance. The result is a
// copy: the caller may retain and use it without further locking.
func (m *Manager) Snapshot() []Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	return out
}
