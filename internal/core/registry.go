package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProfile is returned when no profile is registered under a key.
var ErrUnknownProfile = errors.New("unknown import profile")

var (
	registry   = make(map[string]Profile)
	registryMu sync.RWMutex
)

// Register adds an import profile to the registry.
// Panics if the key is taken or the profile is inconsistent; profiles are
// registered from init functions, so a broken one should stop the program.
func Register(p Profile) {
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("invalid profile %s: %v", p.Key, err))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[p.Key]; exists {
		panic(fmt.Sprintf("profile already registered: %s", p.Key))
	}
	registry[p.Key] = p
}

// Get returns a profile by key.
// Returns false if not found.
func Get(key string) (Profile, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := registry[key]
	return p, ok
}

// Lookup is Get with an error wrapping ErrUnknownProfile.
func Lookup(key string) (Profile, error) {
	p, ok := Get(key)
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, key)
	}
	return p, nil
}

// All returns all registered profiles sorted by key.
func All() []Profile {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Profile, 0, len(registry))
	for _, p := range registry {
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// Clear removes all registered profiles.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Profile)
}

// Validate checks that every column and reference points at something declared.
func (p Profile) Validate() error {
	var errs []error

	if p.Key == "" {
		errs = append(errs, errors.New("key is required"))
	}
	if p.Collection == "" {
		errs = append(errs, errors.New("collection is required"))
	}
	if p.KeyAttr == "" {
		errs = append(errs, errors.New("key attribute is required"))
	}

	keyMapped := false
	for _, c := range p.Columns {
		if _, ok := p.Attribute(c.Attribute); !ok {
			errs = append(errs, fmt.Errorf("header %q: undeclared attribute %q", c.Header, c.Attribute))
		}
		if c.Attribute == p.KeyAttr {
			keyMapped = true
		}
	}
	if p.KeyAttr != "" && !keyMapped {
		errs = append(errs, fmt.Errorf("no header maps to key attribute %q", p.KeyAttr))
	}

	for _, a := range p.Attributes {
		if a.Kind != KindReference {
			continue
		}
		if _, ok := p.Registry(a.Registry); !ok {
			errs = append(errs, fmt.Errorf("attribute %q: unknown registry %q", a.Name, a.Registry))
		}
	}

	return errors.Join(errs...)
}
