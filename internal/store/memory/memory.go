// Package memory provides an in-memory store backed by maps and a single
// RWMutex. Transactions hold the write lock and roll back by restoring a
// snapshot.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
	"github.com/capitalize-ai/social-inbox/internal/store"
)

type sequences struct {
	conversation, message, log, filter, condition int
}

type data struct {
	conversations map[int]*model.Conversation
	filters       map[int]*model.Filter
	fields        map[int]model.ConversationField
	agents        map[int]model.Agent
	departments   map[int]model.Department
	seq           sequences
}

func (d *data) clone() *data {
	out := &data{
		conversations: make(map[int]*model.Conversation, len(d.conversations)),
		filters:       make(map[int]*model.Filter, len(d.filters)),
		fields:        d.fields,
		agents:        d.agents,
		departments:   d.departments,
		seq:           d.seq,
	}
	for id, c := range d.conversations {
		out.conversations[id] = c.Clone()
	}
	for id, f := range d.filters {
		out.filters[id] = f.Clone()
	}
	return out
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.RWMutex
	d  *data
}

// New creates a store seeded with reference data.
func New(seed store.Seed) *Store {
	d := &data{
		conversations: make(map[int]*model.Conversation),
		filters:       make(map[int]*model.Filter),
		fields:        make(map[int]model.ConversationField, len(seed.Fields)),
		agents:        make(map[int]model.Agent, len(seed.Agents)),
		departments:   make(map[int]model.Department, len(seed.Departments)),
	}
	for _, f := range seed.Fields {
		d.fields[f.ID] = f
	}
	for _, a := range seed.Agents {
		d.agents[a.ID] = a
	}
	for _, dep := range seed.Departments {
		d.departments[dep.ID] = dep
	}
	return &Store{d: d}
}

// Stores returns repositories that lock per call.
func (s *Store) Stores() store.Stores {
	return s.stores(false)
}

func (s *Store) stores(inTx bool) store.Stores {
	return store.Stores{
		Conversations: &conversationRepo{s: s, inTx: inTx},
		Filters:       &filterRepo{s: s, inTx: inTx},
		Fields:        &fieldRepo{s: s, inTx: inTx},
		Directory:     &directory{s: s, inTx: inTx},
	}
}

// WithinTx serializes fn against every other call and restores the previous
// state when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st store.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := s.d.clone()
	if err := fn(ctx, s.stores(true)); err != nil {
		s.d = backup
		return err
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) read(inTx bool, fn func(d *data) error) error {
	if !inTx {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn(s.d)
}

func (s *Store) write(inTx bool, fn func(d *data) error) error {
	if !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.d)
}

type conversationRepo struct {
	s    *Store
	inTx bool
}

func (r *conversationRepo) Get(_ context.Context, id int) (*model.Conversation, error) {
	var out *model.Conversation
	err := r.s.read(r.inTx, func(d *data) error {
		c, ok := d.conversations[id]
		if !ok {
			return apperr.NotFound("conversation", id)
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

func (r *conversationRepo) Find(_ context.Context, p predicate.Predicate, opts store.FindOptions) ([]*model.Conversation, error) {
	var out []*model.Conversation
	err := r.s.read(r.inTx, func(d *data) error {
		for _, c := range d.conversations {
			if p(c) {
				out = append(out, c)
			}
		}
		store.SortNewestFirst(out)
		if opts.Limit > 0 && len(out) > opts.Limit {
			out = out[:opts.Limit]
		}
		for i, c := range out {
			out[i] = c.Clone()
		}
		return nil
	})
	return out, err
}

func (r *conversationRepo) FindFirst(_ context.Context, p predicate.Predicate) (*model.Conversation, error) {
	var out *model.Conversation
	err := r.s.read(r.inTx, func(d *data) error {
		for _, id := range sortedIDs(d.conversations) {
			if c := d.conversations[id]; p(c) {
				out = c.Clone()
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *conversationRepo) Count(_ context.Context, p predicate.Predicate) (int, error) {
	n := 0
	err := r.s.read(r.inTx, func(d *data) error {
		for _, c := range d.conversations {
			if p(c) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *conversationRepo) Insert(_ context.Context, c *model.Conversation) error {
	return r.s.write(r.inTx, func(d *data) error {
		d.seq.conversation++
		c.ID = d.seq.conversation
		for i := range c.Messages {
			d.seq.message++
			c.Messages[i].ID = d.seq.message
			c.Messages[i].ConversationID = c.ID
		}
		assignLogIDs(d, c)
		d.conversations[c.ID] = c.Clone()
		return nil
	})
}

func (r *conversationRepo) Save(_ context.Context, c *model.Conversation) error {
	return r.s.write(r.inTx, func(d *data) error {
		existing, ok := d.conversations[c.ID]
		if !ok {
			return apperr.NotFound("conversation", c.ID)
		}
		assignLogIDs(d, c)

		updated := c.Clone()
		updated.Messages = existing.Messages
		updated.Logs = existing.Logs
		for _, l := range c.Logs {
			if l.ID > existing.MaxLogID() {
				updated.Logs = append(updated.Logs, l)
			}
		}
		d.conversations[c.ID] = updated
		return nil
	})
}

func assignLogIDs(d *data, c *model.Conversation) {
	for i := range c.Logs {
		if c.Logs[i].ID == 0 {
			d.seq.log++
			c.Logs[i].ID = d.seq.log
		}
		c.Logs[i].ConversationID = c.ID
	}
}

func (r *conversationRepo) Logs(_ context.Context, conversationID int) ([]model.ConversationLog, error) {
	var out []model.ConversationLog
	err := r.s.read(r.inTx, func(d *data) error {
		c, ok := d.conversations[conversationID]
		if !ok {
			return apperr.NotFound("conversation", conversationID)
		}
		out = append([]model.ConversationLog(nil), c.Logs...)
		store.SortLogsNewestFirst(out)
		return nil
	})
	return out, err
}

type filterRepo struct {
	s    *Store
	inTx bool
}

func (r *filterRepo) Get(_ context.Context, id int) (*model.Filter, error) {
	var out *model.Filter
	err := r.s.read(r.inTx, func(d *data) error {
		f, ok := d.filters[id]
		if !ok {
			return apperr.NotFound("filter", id)
		}
		out = f.Clone()
		return nil
	})
	return out, err
}

func (r *filterRepo) List(_ context.Context) ([]model.Filter, error) {
	var out []model.Filter
	err := r.s.read(r.inTx, func(d *data) error {
		for _, f := range d.filters {
			out = append(out, *f.Clone())
		}
		store.SortFilters(out)
		return nil
	})
	return out, err
}

func (r *filterRepo) Create(_ context.Context, f *model.Filter) error {
	return r.s.write(r.inTx, func(d *data) error {
		d.seq.filter++
		f.ID = d.seq.filter
		assignConditionIDs(d, f)
		d.filters[f.ID] = stripFields(f)
		return nil
	})
}

func (r *filterRepo) Update(_ context.Context, f *model.Filter) error {
	return r.s.write(r.inTx, func(d *data) error {
		if _, ok := d.filters[f.ID]; !ok {
			return apperr.NotFound("filter", f.ID)
		}
		assignConditionIDs(d, f)
		d.filters[f.ID] = stripFields(f)
		return nil
	})
}

func (r *filterRepo) Delete(_ context.Context, id int) error {
	return r.s.write(r.inTx, func(d *data) error {
		if _, ok := d.filters[id]; !ok {
			return apperr.NotFound("filter", id)
		}
		delete(d.filters, id)
		return nil
	})
}

func assignConditionIDs(d *data, f *model.Filter) {
	for i := range f.Conditions {
		if f.Conditions[i].ID == 0 {
			d.seq.condition++
			f.Conditions[i].ID = d.seq.condition
		}
		f.Conditions[i].FilterID = f.ID
	}
}

// stripFields stores conditions by field id only.
func stripFields(f *model.Filter) *model.Filter {
	out := f.Clone()
	for i := range out.Conditions {
		out.Conditions[i].Field = nil
	}
	return out
}

type fieldRepo struct {
	s    *Store
	inTx bool
}

func (r *fieldRepo) Get(_ context.Context, id int) (*model.ConversationField, error) {
	var out *model.ConversationField
	err := r.s.read(r.inTx, func(d *data) error {
		f, ok := d.fields[id]
		if !ok {
			return apperr.NotFound("field", id)
		}
		f.Options = append([]model.FieldOption(nil), f.Options...)
		out = &f
		return nil
	})
	return out, err
}

func (r *fieldRepo) List(_ context.Context) ([]model.ConversationField, error) {
	var out []model.ConversationField
	err := r.s.read(r.inTx, func(d *data) error {
		for _, id := range sortedIDs(d.fields) {
			out = append(out, d.fields[id])
		}
		return nil
	})
	return out, err
}

type directory struct {
	s    *Store
	inTx bool
}

func (r *directory) AgentName(_ context.Context, id int) (string, error) {
	var name string
	err := r.s.read(r.inTx, func(d *data) error {
		a, ok := d.agents[id]
		if !ok {
			return apperr.NotFound("agent", id)
		}
		name = a.Name
		return nil
	})
	return name, err
}

func (r *directory) DepartmentName(_ context.Context, id int) (string, error) {
	var name string
	err := r.s.read(r.inTx, func(d *data) error {
		dep, ok := d.departments[id]
		if !ok {
			return apperr.NotFound("department", id)
		}
		name = dep.Name
		return nil
	})
	return name, err
}

func (r *directory) DepartmentMembers(_ context.Context, departmentID int) ([]int, error) {
	var ids []int
	err := r.s.read(r.inTx, func(d *data) error {
		for _, a := range d.agents {
			if a.DepartmentID != nil && *a.DepartmentID == departmentID {
				ids = append(ids, a.ID)
			}
		}
		sort.Ints(ids)
		return nil
	})
	return ids, err
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
