package integrity

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Resource is one monitored entry of the registry manifest.
type Resource struct {
	Name     string `yaml:"name"`
	SHA256   string `yaml:"sha256"`
	Severity string `yaml:"severity"`
}

type manifest struct {
	Resources []Resource `yaml:"resources"`
}

type expectation struct {
	hash     string
	severity ThreatLevel
}

// Registry holds the set of monitored resource names with their expected
// hashes and severities. It is safe for concurrent readers while the monitor
// mutates it.
type Registry struct {
	mu       sync.RWMutex
	expected map[string]expectation
}

func NewRegistry() *Registry {
	return &Registry{expected: make(map[string]expectation)}
}

// LoadManifest builds a Registry from a YAML manifest of the form:
//
//	resources:
//	  - name: core.bin
//	    sha256: aaaa....
//	    severity: critical
func LoadManifest(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	r := NewRegistry()
	for _, res := range m.Resources {
		severity, ok := ParseThreatLevel(res.Severity)
		if !ok {
			return nil, fmt.Errorf("manifest entry %q: unknown severity %q", res.Name, res.Severity)
		}
		if res.Name == "" || res.SHA256 == "" {
			return nil, fmt.Errorf("manifest entry %q: name and sha256 are required", res.Name)
		}
		r.Register(res.Name, res.SHA256, severity)
	}

	return r, nil
}

// Register adds or replaces the expectation for a resource.
func (r *Registry) Register(name, expectedHash string, severity ThreatLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expected[name] = expectation{hash: expectedHash, severity: severity}
}

// Unregister removes a resource from monitoring.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expected, name)
}

// Expected returns the expected hash and severity for a resource.
func (r *Registry) Expected(name string) (hash string, severity ThreatLevel, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.expected[name]
	return e.hash, e.severity, ok
}

// Names returns a snapshot of all registered resource names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.expected))
	for name := range r.expected {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.expected)
}
