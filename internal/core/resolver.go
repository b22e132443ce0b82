package core

// resolver.go implements find-or-create for reference attributes.
//
// A label is looked up in its registry by case-insensitive name (and any
// extra match fields the registry declares). When nothing matches and
// creation is allowed, a minimal record is created. All store access for one
// resolution runs in its own savepoint, so a failed create costs the cell and
// nothing else.
//
// Resolutions are cached for the whole run. Entries produced while a row is
// being processed stay pending until the row commits: if the row is rolled
// back, the records it created are gone and so are their cache entries and
// creation counts.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Resolution tells how a reference label was resolved.
type Resolution int

const (
	ResolveAbsent Resolution = iota
	ResolveFound
	ResolveCreated
)

func (r Resolution) String() string {
	switch r {
	case ResolveFound:
		return "found"
	case ResolveCreated:
		return "created"
	default:
		return "absent"
	}
}

// sentinelLabels are placeholders spreadsheets use for "no value".
var sentinelLabels = map[string]bool{
	"nan":     true,
	"none":    true,
	"n/a":     true,
	"na":      true,
	"default": true,
}

// maxHandleAttempts bounds the collision suffix search.
const maxHandleAttempts = 1000

// errUnknownRegistry is returned when an attribute names a registry the profile lacks.
var errUnknownRegistry = errors.New("unknown registry")

var (
	folder     = cases.Fold()
	lowerCaser = cases.Lower(language.Und)
)

type cacheKey struct {
	registry string
	label    string
}

// Resolver resolves reference labels against a profile's registries.
// It is not safe for concurrent use; one run owns one Resolver.
type Resolver struct {
	session Session
	profile Profile
	create  bool
	logger  *slog.Logger

	cache   map[cacheKey]int64
	created map[string]int

	pending        map[cacheKey]int64
	pendingCreated map[string]int
}

// NewResolver creates a resolver bound to a transaction session.
func NewResolver(sess Session, p Profile, allowCreate bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		session:        sess,
		profile:        p,
		create:         allowCreate,
		logger:         logger,
		cache:          make(map[cacheKey]int64),
		created:        make(map[string]int),
		pending:        make(map[cacheKey]int64),
		pendingCreated: make(map[string]int),
	}
}

// IsSentinel reports whether a label means "no value".
func IsSentinel(label string) bool {
	s := strings.TrimSpace(label)
	return s == "" || sentinelLabels[strings.ToLower(s)]
}

// Resolve returns the identifier of the record a label refers to.
// Blank and sentinel labels resolve to ResolveAbsent without touching the store.
func (r *Resolver) Resolve(ctx context.Context, registry string, label string) (int64, Resolution, error) {
	label = strings.TrimSpace(label)
	if IsSentinel(label) {
		return 0, ResolveAbsent, nil
	}

	spec, ok := r.profile.Registry(registry)
	if !ok {
		return 0, ResolveAbsent, fmt.Errorf("%w %q", errUnknownRegistry, registry)
	}

	key := cacheKey{registry: spec.Name, label: folder.String(label)}
	if id, ok := r.cache[key]; ok {
		return id, ResolveFound, nil
	}
	if id, ok := r.pending[key]; ok {
		return id, ResolveFound, nil
	}

	var (
		id  int64
		res = ResolveAbsent
	)
	err := r.session.Savepoint(ctx, func(ctx context.Context) error {
		coll := r.session.Collection(spec.Collection)

		rec, err := coll.Search(ctx, registryCriteria(spec, label))
		if err != nil {
			return fmt.Errorf("search %s %q: %w", spec.Name, label, err)
		}
		if rec != nil {
			id, res = rec.ID, ResolveFound
			return nil
		}

		if !r.create || spec.SearchOnly {
			return nil
		}

		values := Values{"name": label}
		if spec.HandleField != "" {
			handle, err := uniqueHandle(ctx, coll, spec.HandleField, DeriveHandle(label))
			if err != nil {
				return fmt.Errorf("derive %s for %q: %w", spec.HandleField, label, err)
			}
			values[spec.HandleField] = handle
		}

		rec, err = coll.Create(ctx, values)
		if err != nil {
			return fmt.Errorf("create %s %q: %w", spec.Name, label, err)
		}
		id, res = rec.ID, ResolveCreated
		return nil
	})
	if err != nil {
		r.logger.Warn("reference resolution failed",
			"registry", spec.Name,
			"label", label,
			"error", err,
		)
		return 0, ResolveAbsent, err
	}

	switch res {
	case ResolveFound:
		// A hit may be a record this same row created under another label.
		r.pending[key] = id
	case ResolveCreated:
		r.pending[key] = id
		r.pendingCreated[spec.Name]++
		r.logger.Debug("reference created", "registry", spec.Name, "label", label, "id", id)
	}
	return id, res, nil
}

// CommitRow keeps the entries resolved since the last commit or discard.
func (r *Resolver) CommitRow() {
	for k, id := range r.pending {
		r.cache[k] = id
	}
	for reg, n := range r.pendingCreated {
		r.created[reg] += n
	}
	clear(r.pending)
	clear(r.pendingCreated)
}

// DiscardRow forgets records created by a row that was rolled back.
func (r *Resolver) DiscardRow() {
	clear(r.pending)
	clear(r.pendingCreated)
}

// Created returns the committed creation count per registry.
func (r *Resolver) Created() map[string]int {
	out := make(map[string]int, len(r.created))
	for k, v := range r.created {
		out[k] = v
	}
	return out
}

func registryCriteria(spec RegistrySpec, label string) Criteria {
	c := Criteria{Any: []Match{{Field: "name", Value: label, Fold: true}}}
	for _, f := range spec.MatchFields {
		c.Any = append(c.Any, Match{Field: f, Value: label, Fold: true})
	}
	return c
}

// DeriveHandle turns a display name into a short login-style handle:
// accents folded, lowercased, spaces replaced by dots and anything other
// than letters, digits, '.', '_' and '-' removed. "José  Martín" gives "jose.martin".
func DeriveHandle(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, label)
	if err != nil {
		s = label
	}
	s = lowerCaser.String(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == '.' || unicode.IsSpace(r):
			b.WriteRune('.')
		}
	}

	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '.' })
	handle := strings.Join(parts, ".")
	if handle == "" {
		return "user"
	}
	return handle
}

// uniqueHandle appends 2, 3, ... to base until no record uses the handle.
func uniqueHandle(ctx context.Context, coll Collection, field string, base string) (string, error) {
	candidate := base
	for n := 2; n < maxHandleAttempts; n++ {
		rec, err := coll.Search(ctx, Criteria{Any: []Match{{Field: field, Value: candidate, Fold: true}}})
		if err != nil {
			return "", err
		}
		if rec == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, n)
	}
	return "", fmt.Errorf("no free handle for %q after %d attempts", base, maxHandleAttempts)
}
