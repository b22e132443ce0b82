package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// StoreOp identifies a collection operation, for failure injection.
type StoreOp string

const (
	OpSearch StoreOp = "search"
	OpCreate StoreOp = "create"
	OpWrite  StoreOp = "write"
)

// ErrTxDone is returned when a finished transaction is used.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// FailFunc lets tests make a store operation fail.
// Returning a non-nil error aborts the operation with that error.
type FailFunc func(op StoreOp, collection string, values Values) error

// MemoryStore is an in-process Store. Transactions work on a private copy of
// the data and savepoints keep an undo journal, so the row isolation
// semantics match the PostgreSQL store. Commit merges the touched records
// back; concurrent writes to the same record are last-commit-wins.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	data   map[string]map[int64]Values

	// FailOn, if set, is consulted before every collection operation.
	FailOn FailFunc
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[int64]Values)}
}

// Seed inserts a committed record outside any transaction.
func (s *MemoryStore) Seed(collection string, values Values) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	if s.data[collection] == nil {
		s.data[collection] = make(map[int64]Values)
	}
	s.data[collection][s.nextID] = values.Clone()
	return &Record{ID: s.nextID, Values: values.Clone()}
}

// All returns the committed records of a collection ordered by ID.
func (s *MemoryStore) All(collection string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := sortedRecords(s.data[collection])
	for i := range recs {
		recs[i].Values = recs[i].Values.Clone()
	}
	return recs
}

// Count returns the number of committed records in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[collection])
}

// Begin starts a transaction on a copy of the committed data.
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := make(map[string]map[int64]Values, len(s.data))
	for name, recs := range s.data {
		cp := make(map[int64]Values, len(recs))
		for id, v := range recs {
			cp[id] = v.Clone()
		}
		work[name] = cp
	}
	return &memTx{store: s, work: work}, nil
}

func (s *MemoryStore) allocID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// undoEntry restores one record to its state before a change.
// prev == nil means the record did not exist.
type undoEntry struct {
	collection string
	id         int64
	prev       Values
}

type memTx struct {
	store   *MemoryStore
	work    map[string]map[int64]Values
	journal []undoEntry
	done    bool
}

func (t *memTx) Collection(name string) Collection {
	return &memCollection{tx: t, name: name}
}

func (t *memTx) Savepoint(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if t.done {
		return ErrTxDone
	}
	mark := len(t.journal)
	defer func() {
		if r := recover(); r != nil {
			t.undo(mark)
			panic(r)
		}
		if err != nil {
			t.undo(mark)
		}
	}()
	return fn(ctx)
}

func (t *memTx) undo(mark int) {
	for i := len(t.journal) - 1; i >= mark; i-- {
		e := t.journal[i]
		if e.prev == nil {
			delete(t.work[e.collection], e.id)
		} else {
			t.work[e.collection][e.id] = e.prev
		}
	}
	t.journal = t.journal[:mark]
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	// Only the records this transaction touched are written back, so runs
	// committing in any order keep each other's rows.
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, e := range t.journal {
		cur, ok := t.work[e.collection][e.id]
		live := t.store.data[e.collection]
		if !ok {
			delete(live, e.id)
			continue
		}
		if live == nil {
			live = make(map[int64]Values)
			t.store.data[e.collection] = live
		}
		live[e.id] = cur.Clone()
	}
	t.work = nil
	t.journal = nil
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.work = nil
	t.journal = nil
	return nil
}

type memCollection struct {
	tx   *memTx
	name string
}

func (c *memCollection) check(op StoreOp, values Values) error {
	if c.tx.done {
		return ErrTxDone
	}
	if c.tx.store.FailOn != nil {
		return c.tx.store.FailOn(op, c.name, values)
	}
	return nil
}

func (c *memCollection) Search(ctx context.Context, crit Criteria) (*Record, error) {
	if err := c.check(OpSearch, nil); err != nil {
		return nil, err
	}
	for _, rec := range sortedRecords(c.tx.work[c.name]) {
		if matches(rec.Values, crit) {
			return &Record{ID: rec.ID, Values: rec.Values.Clone()}, nil
		}
	}
	return nil, nil
}

func (c *memCollection) Create(ctx context.Context, values Values) (*Record, error) {
	if err := c.check(OpCreate, values); err != nil {
		return nil, err
	}
	id := c.tx.store.allocID()
	if c.tx.work[c.name] == nil {
		c.tx.work[c.name] = make(map[int64]Values)
	}
	c.tx.work[c.name][id] = values.Clone()
	c.tx.journal = append(c.tx.journal, undoEntry{collection: c.name, id: id})
	return &Record{ID: id, Values: values.Clone()}, nil
}

func (c *memCollection) Write(ctx context.Context, rec *Record, values Values) error {
	if err := c.check(OpWrite, values); err != nil {
		return err
	}
	cur, ok := c.tx.work[c.name][rec.ID]
	if !ok {
		return fmt.Errorf("%s record %d not found", c.name, rec.ID)
	}
	c.tx.journal = append(c.tx.journal, undoEntry{collection: c.name, id: rec.ID, prev: cur.Clone()})
	for k, v := range values {
		cur[k] = v
	}
	return nil
}

func sortedRecords(recs map[int64]Values) []Record {
	out := make([]Record, 0, len(recs))
	for id, v := range recs {
		out = append(out, Record{ID: id, Values: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matches(values Values, crit Criteria) bool {
	for _, m := range crit.Any {
		got, ok := values[m.Field]
		if !ok {
			continue
		}
		s := valueString(got)
		if m.Fold && strings.EqualFold(s, m.Value) {
			return true
		}
		if !m.Fold && s == m.Value {
			return true
		}
	}
	return false
}

func valueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(time.DateOnly)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
