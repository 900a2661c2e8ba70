// Package roster loads and indexes the worker roster. Workers are loaded
// from configuration at startup and are immutable during a run, except for
// the external-identity field, which the gateway populates once it learns
// each worker's chat-platform ID.
package roster

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Worker is one addressable AI-driven participant.
type Worker struct {
	Name      string  `yaml:"name"`
	Leader    bool    `yaml:"leader"`
	Channel   string  `yaml:"channel"`
	Model     string  `yaml:"model,omitempty"`
	BudgetUSD float64 `yaml:"budget_usd,omitempty"`
	// Human marks a participant that can be mentioned but never dispatched.
	Human bool `yaml:"human,omitempty"`

	// ExternalID is the chat platform identity, auto-populated at startup.
	ExternalID string `yaml:"-"`
}

// Roster indexes the loaded workers by name and external ID.
type Roster struct {
	mu         sync.RWMutex
	workers    []*Worker
	byName     map[string]*Worker
	byExternal map[string]*Worker
}

// fileFormat is the on-disk YAML shape.
type fileFormat struct {
	Workers []*Worker `yaml:"workers"`
}

// Load reads the roster from a YAML file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path) //nolint:gosec // roster path is controlled by the application
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return New(f.Workers)
}

// New builds a roster from an explicit worker list. Names must be unique
// (case-insensitive); exactly one leader is expected but not enforced beyond
// requiring at least one non-human worker.
func New(workers []*Worker) (*Roster, error) {
	r := &Roster{
		byName:     make(map[string]*Worker),
		byExternal: make(map[string]*Worker),
	}
	nonHuman := 0
	for _, w := range workers {
		if w.Name == "" {
			return nil, fmt.Errorf("roster: worker with empty name")
		}
		key := strings.ToLower(w.Name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("roster: duplicate worker name %q", w.Name)
		}
		r.byName[key] = w
		r.workers = append(r.workers, w)
		if !w.Human {
			nonHuman++
		}
	}
	if nonHuman == 0 {
		return nil, fmt.Errorf("roster: no dispatchable workers")
	}
	return r, nil
}

// Get looks up a worker by name, case-insensitively. Missing lookups return
// ok=false, never panic.
func (r *Roster) Get(name string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byName[strings.ToLower(name)]
	return w, ok
}

// ByExternalID looks up a worker by its chat-platform identity.
func (r *Roster) ByExternalID(id string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byExternal[id]
	return w, ok
}

// SetExternalID records a worker's chat-platform identity. Called once per
// worker at gateway startup; unknown names are no-ops.
func (r *Roster) SetExternalID(name, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return
	}
	w.ExternalID = id
	if id != "" {
		r.byExternal[id] = w
	}
}

// Leader returns the first worker flagged as leader, or nil if none.
func (r *Roster) Leader() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.workers {
		if w.Leader && !w.Human {
			return w
		}
	}
	return nil
}

// Workers returns all workers in roster order.
func (r *Roster) Workers() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Worker, len(r.workers))
	copy(out, r.workers)
	return out
}

// NonLeaders returns all dispatchable workers that are not the leader.
func (r *Roster) NonLeaders() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Worker
	for _, w := range r.workers {
		if !w.Leader && !w.Human {
			out = append(out, w)
		}
	}
	return out
}
