package store

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"beltline.dev/internal/editor/model"
)

var (
	// ErrUnknownEntity means an operation referenced an entity that is
	// absent both before and after the mutation, or a delta targeted a
	// missing entity. Nothing is committed.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrReentrantOperation is returned when an operation starts while
	// another one (or its observers) is still running.
	ErrReentrantOperation = errors.New("operation already in progress")
	ErrDuplicateEntity    = errors.New("entity number already in use")
)

// Log tags.
const (
	TagAdd    = "add"
	TagDelete = "del"
	TagUpdate = "upd"
	TagMove   = "mov"
)

// Change is the before/after snapshot of one affected entity. A nil side
// means the entity did not exist.
type Change struct {
	EntityNumber int           `json:"entity_number"`
	Before       *model.Entity `json:"before,omitempty"`
	After        *model.Entity `json:"after,omitempty"`
}

// LogEntry is one operation-log record. Index is the position in the log;
// Seq is the version the entry leads to.
type LogEntry struct {
	Index    uint64   `json:"index"`
	Seq      uint64   `json:"seq"`
	Label    string   `json:"label"`
	Tag      string   `json:"tag,omitempty"`
	Affected []int    `json:"affected"`
	Changes  []Change `json:"changes"`

	Before model.Version `json:"-"`
	After  model.Version `json:"-"`
}

// Event is delivered to observers after a version swap.
type Event struct {
	Label    string
	Tag      string
	Affected []int
	Before   model.Version
	After    model.Version
	// Reset is set when the whole collection was replaced.
	Reset bool
}

type Observer interface {
	OnCommit(ev Event)
}

type ObserverFunc func(ev Event)

func (f ObserverFunc) OnCommit(ev Event) { f(ev) }

// HistorySink receives every entry pushed to the log. A collapsed entry is
// re-sent with its original Index.
type HistorySink interface {
	Record(e LogEntry) error
}

type Option func(*opConfig)

type opConfig struct {
	tag       string
	noHistory bool
}

func WithTag(tag string) Option { return func(c *opConfig) { c.tag = tag } }

// WithoutHistory commits without pushing a log entry.
func WithoutHistory() Option { return func(c *opConfig) { c.noHistory = true } }

type Store struct {
	cur          model.Version
	next         int
	busy         atomic.Bool
	observers    []Observer
	sinks        []HistorySink
	history      []LogEntry
	historyLimit int
	logIndex     uint64
	sealed       bool

	// OnSinkError is called when a sink fails; the operation itself still
	// succeeds.
	OnSinkError func(err error)
}

// New returns an empty store. historyLimit <= 0 keeps the whole log.
func New(historyLimit int) *Store {
	return &Store{
		cur:          model.Version{Entities: model.NewCollection()},
		next:         1,
		historyLimit: historyLimit,
	}
}

func (s *Store) Current() model.Version { return s.cur }

func (s *Store) Entity(n int) (model.Entity, bool) { return s.cur.Entities.Get(n) }

// NextEntityNumber reserves a fresh entity number. Numbers are never reused.
func (s *Store) NextEntityNumber() int {
	n := s.next
	s.next++
	return n
}

// PeekEntityNumber returns the number NextEntityNumber would hand out.
func (s *Store) PeekEntityNumber() int { return s.next }

// LogIndex is the index of the newest log entry.
func (s *Store) LogIndex() uint64 { return s.logIndex }

// Checkpoint returns the current version sequence and log index and seals
// the newest entry: later moves start a new entry instead of collapsing
// into one a snapshot already covers.
func (s *Store) Checkpoint() (seq, logIndex uint64) {
	s.sealed = true
	return s.cur.Seq, s.logIndex
}

// Rebase sets the sequence and log index a restored store continues from.
func (s *Store) Rebase(seq, logIndex uint64) {
	s.cur.Seq = seq
	s.logIndex = logIndex
	s.sealed = true
}

// Subscribe appends an observer. Observers run in subscription order.
func (s *Store) Subscribe(o Observer) { s.observers = append(s.observers, o) }

func (s *Store) AddSink(h HistorySink) { s.sinks = append(s.sinks, h) }

// History returns a copy of the operation log, oldest first.
func (s *Store) History() []LogEntry {
	return append([]LogEntry(nil), s.history...)
}

// Operation applies mutate to the current collection, bumps the version and
// notifies observers before returning. Every affected entity must exist
// before or after the mutation.
func (s *Store) Operation(affected []int, label string, mutate func(model.Collection) (model.Collection, error), opts ...Option) (model.Version, error) {
	var cfg opConfig
	for _, o := range opts {
		o(&cfg)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return s.cur, ErrReentrantOperation
	}
	defer s.busy.Store(false)

	before := s.cur
	next, err := mutate(before.Entities)
	if err != nil {
		return before, err
	}
	ids := dedupe(affected)
	for _, n := range ids {
		if !before.Entities.Has(n) && !next.Has(n) {
			return before, fmt.Errorf("%s: %w: %d", label, ErrUnknownEntity, n)
		}
	}
	for _, n := range ids {
		if n >= s.next && next.Has(n) {
			s.next = n + 1
		}
	}

	after := model.Version{Seq: before.Seq + 1, Entities: next}
	s.cur = after

	if !cfg.noHistory {
		s.push(LogEntry{
			Seq:      after.Seq,
			Label:    label,
			Tag:      cfg.tag,
			Affected: ids,
			Changes:  changes(ids, before.Entities, next),
			Before:   before,
			After:    after,
		})
	}
	ev := Event{Label: label, Tag: cfg.tag, Affected: ids, Before: before, After: after}
	for _, o := range s.observers {
		o.OnCommit(ev)
	}
	return after, nil
}

// Commit applies a transaction as a single operation.
func (s *Store) Commit(tx Transaction) (model.Version, error) {
	opts := []Option{WithTag(tx.Tag)}
	if tx.NoHistory {
		opts = append(opts, WithoutHistory())
	}
	label := tx.Label
	if label == "" {
		label = "commit"
	}
	return s.Operation(tx.Affected(), label, tx.apply, opts...)
}

// Reset replaces the whole collection, e.g. after loading a snapshot. The
// log is cleared and observers see every entity of either side as affected.
func (s *Store) Reset(entities model.Collection, nextNumber int) (model.Version, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return s.cur, ErrReentrantOperation
	}
	defer s.busy.Store(false)

	before := s.cur
	ids := append(before.Entities.Numbers(), entities.Numbers()...)
	ids = dedupe(ids)
	sort.Ints(ids)

	s.cur = model.Version{Seq: before.Seq + 1, Entities: entities}
	s.next = nextNumber
	for _, n := range ids {
		if n >= s.next {
			s.next = n + 1
		}
	}
	if s.next < 1 {
		s.next = 1
	}
	s.history = nil

	ev := Event{Label: "reset", Affected: ids, Before: before, After: s.cur, Reset: true}
	for _, o := range s.observers {
		o.OnCommit(ev)
	}
	return s.cur, nil
}

func (s *Store) push(e LogEntry) {
	if e.Tag == TagMove && len(e.Affected) == 1 && len(s.history) > 0 && !s.sealed {
		last := &s.history[len(s.history)-1]
		if last.Tag == TagMove && len(last.Affected) == 1 && last.Affected[0] == e.Affected[0] {
			last.Seq = e.Seq
			last.After = e.After
			last.Changes = []Change{{
				EntityNumber: e.Affected[0],
				Before:       last.Changes[0].Before,
				After:        e.Changes[0].After,
			}}
			s.emit(*last)
			return
		}
	}
	s.sealed = false
	s.logIndex++
	e.Index = s.logIndex
	s.history = append(s.history, e)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		drop := len(s.history) - s.historyLimit
		s.history = append([]LogEntry(nil), s.history[drop:]...)
	}
	s.emit(e)
}

func (s *Store) emit(e LogEntry) {
	for _, h := range s.sinks {
		if err := h.Record(e); err != nil && s.OnSinkError != nil {
			s.OnSinkError(err)
		}
	}
}

func changes(ids []int, before, after model.Collection) []Change {
	out := make([]Change, 0, len(ids))
	for _, n := range ids {
		c := Change{EntityNumber: n}
		if e, ok := before.Get(n); ok {
			c.Before = &e
		}
		if e, ok := after.Get(n); ok {
			c.After = &e
		}
		out = append(out, c)
	}
	return out
}

func dedupe(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, n := range ids {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
