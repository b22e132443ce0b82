package core

// store.go defines the persistence collaborator the importer talks to.
//
// The importer never touches a database directly. It opens one transaction
// per run through Store.Begin and wraps every row in Session.Savepoint, so a
// row that fails is rolled back on its own while earlier rows stay in the
// run's transaction. Implementations: MemoryStore (tests, dry runs) and
// pgstore.Store (PostgreSQL).

import "context"

// Values is an attribute-name to value map.
// Values are string, float64, time.Time or int64 (reference identifiers).
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Record is a stored entity.
type Record struct {
	ID     int64
	Values Values
}

// Name returns the record's "name" attribute.
func (r *Record) Name() string {
	if r == nil {
		return ""
	}
	s, _ := r.Values["name"].(string)
	return s
}

// Match compares one field against a value.
type Match struct {
	Field string
	Value string
	Fold  bool // Case-insensitive comparison
}

// Criteria matches a record when any of its matches holds.
type Criteria struct {
	Any []Match
}

// ByName matches the "name" field exactly.
func ByName(name string) Criteria {
	return Criteria{Any: []Match{{Field: "name", Value: name}}}
}

// Collection is a named set of records.
type Collection interface {
	// Search returns the first record matching c, or nil when none does.
	Search(ctx context.Context, c Criteria) (*Record, error)

	// Create inserts a record and returns it with its identifier set.
	Create(ctx context.Context, values Values) (*Record, error)

	// Write applies values to an existing record as a partial update.
	Write(ctx context.Context, rec *Record, values Values) error
}

// Session scopes collection access to a transaction.
type Session interface {
	Collection(name string) Collection

	// Savepoint runs fn so that its writes are undone if fn returns an error,
	// leaving the enclosing transaction usable. Calls may nest.
	Savepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

// Tx is a Session that can be finished.
type Tx interface {
	Session
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}
