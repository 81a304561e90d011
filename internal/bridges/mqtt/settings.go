package mqtt

import (
	"maps"
	"strings"
	"sync"
)

// DefaultHostKey is the well-known key of the broker the manager connects to.
const DefaultHostKey = "default"

// Host is the connection settings of one broker.
type Host struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string
	Username string
	Password string
}

// HostSettings is the set of configured brokers keyed by name, plus a
// version counter that changes whenever the set changes.
//
// Thread Safety: All methods are safe for concurrent use.
type HostSettings struct {
	mu      sync.RWMutex
	hosts   map[string]Host
	version int64
}

// NewHostSettings creates settings holding hosts at version 0.
func NewHostSettings(hosts map[string]Host) *HostSettings {
	return &HostSettings{hosts: normaliseHosts(hosts)}
}

// Replace swaps in a new host set. The version is incremented only when the
// new set differs from the current one. It reports whether it changed.
func (s *HostSettings) Replace(hosts map[string]Host) bool {
	next := normaliseHosts(hosts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if maps.Equal(s.hosts, next) {
		return false
	}
	s.hosts = next
	s.version++
	return true
}

// Version returns the current version.
func (s *HostSettings) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Lookup returns the host under key (case-insensitive) and the version the
// answer belongs to.
func (s *HostSettings) Lookup(key string) (Host, int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[strings.ToLower(key)]
	return h, s.version, ok
}

func normaliseHosts(hosts map[string]Host) map[string]Host {
	out := make(map[string]Host, len(hosts))
	for k, h := range hosts {
		out[strings.ToLower(strings.TrimSpace(k))] = h
	}
	return out
}
