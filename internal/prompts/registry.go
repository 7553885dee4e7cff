package prompts

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages versioned prompts.
type Registry struct {
	mu      sync.RWMutex
	prompts map[string]map[PromptVersion]*Prompt // ID -> Version -> Prompt
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		prompts: make(map[string]map[PromptVersion]*Prompt),
	}
}

// NewDefaultRegistry creates a registry holding the built-in prompts.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range builtin {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a prompt. Registering the same ID and version twice fails.
func (r *Registry) Register(p *Prompt) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("prompt must have an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prompts[p.ID] == nil {
		r.prompts[p.ID] = make(map[PromptVersion]*Prompt)
	}
	if _, exists := r.prompts[p.ID][p.Version]; exists {
		return fmt.Errorf("prompt %s version %s already registered", p.ID, p.Version)
	}
	r.prompts[p.ID][p.Version] = p
	return nil
}

// Get retrieves a specific version of a prompt.
func (r *Registry) Get(id string, version PromptVersion) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prompt, ok := r.prompts[id][version]
	if !ok {
		return nil, fmt.Errorf("prompt %s version %s not found", id, version)
	}
	return prompt, nil
}

// Latest retrieves the newest non-deprecated version of a prompt, or the
// newest version when all are deprecated.
func (r *Registry) Latest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}

	var latest, latestAny *Prompt
	for _, p := range versions {
		if latestAny == nil || p.Version > latestAny.Version {
			latestAny = p
		}
		if !p.Deprecated && (latest == nil || p.Version > latest.Version) {
			latest = p
		}
	}
	if latest == nil {
		return latestAny, nil
	}
	return latest, nil
}

// List returns all prompt IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render builds the latest version of id with vars.
func (r *Registry) Render(id string, vars map[string]string) (string, error) {
	p, err := r.Latest(id)
	if err != nil {
		return "", err
	}
	b := NewBuilder(p)
	for k, v := range vars {
		b.SetVariable(k, v)
	}
	return b.Build()
}
