// Package sqlstore implements the store interfaces on gorm over SQLite.
//
// Conversation predicates are Go functions, so queries load the rows with
// their messages and logs and evaluate the predicate in memory.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/social-inbox/internal/apperr"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/predicate"
	"github.com/capitalize-ai/social-inbox/internal/store"
)

// Store is a gorm-backed store.Store.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite database at dsn, migrates the schema and
// upserts the seed data.
func Open(dsn string, seed store.Seed) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" databases shared.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	if err := s.seed(seed); err != nil {
		return nil, err
	}
	return s, nil
}

// AutoMigrate creates database tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(
		&conversationRecord{},
		&messageRecord{},
		&conversationLogRecord{},
		&filterRecord{},
		&filterConditionRecord{},
		&fieldRecord{},
		&agentRecord{},
		&departmentRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *Store) seed(seed store.Seed) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Each insert needs its own statement; a shared one keeps the first model's schema.
		upsert := func(rec interface{}) error {
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
		}
		for _, f := range seed.Fields {
			rec := fieldRecord{
				ID:       f.ID,
				Name:     f.Name,
				DataType: string(f.DataType),
				Kind:     string(f.Kind),
				IsSystem: f.IsSystem,
				Options:  f.Options,
			}
			if err := upsert(&rec); err != nil {
				return fmt.Errorf("failed to seed field %d: %w", f.ID, err)
			}
		}
		for _, d := range seed.Departments {
			rec := departmentRecord{ID: d.ID, Name: d.Name}
			if err := upsert(&rec); err != nil {
				return fmt.Errorf("failed to seed department %d: %w", d.ID, err)
			}
		}
		for _, a := range seed.Agents {
			rec := agentRecord{ID: a.ID, Name: a.Name, DepartmentID: a.DepartmentID}
			if err := upsert(&rec); err != nil {
				return fmt.Errorf("failed to seed agent %d: %w", a.ID, err)
			}
		}
		return nil
	})
}

// Stores returns repositories bound to the connection pool.
func (s *Store) Stores() store.Stores {
	return storesFor(s.db)
}

func storesFor(db *gorm.DB) store.Stores {
	return store.Stores{
		Conversations: &conversationRepo{db: db},
		Filters:       &filterRepo{db: db},
		Fields:        &fieldRepo{db: db},
		Directory:     &directory{db: db},
	}
}

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st store.Stores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, storesFor(tx))
	})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, entity string, id int) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}

type conversationRepo struct {
	db *gorm.DB
}

func (r *conversationRepo) withChildren(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Logs", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

func (r *conversationRepo) Get(ctx context.Context, id int) (*model.Conversation, error) {
	var rec conversationRecord
	if err := r.withChildren(ctx).First(&rec, id).Error; err != nil {
		return nil, notFound(err, "conversation", id)
	}
	return rec.toModel(), nil
}

func (r *conversationRepo) load(ctx context.Context, order string) ([]*model.Conversation, error) {
	var recs []conversationRecord
	if err := r.withChildren(ctx).Order(order).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Conversation, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	return out, nil
}

func (r *conversationRepo) Find(ctx context.Context, p predicate.Predicate, opts store.FindOptions) ([]*model.Conversation, error) {
	all, err := r.load(ctx, "last_message_sent_time DESC, id DESC")
	if err != nil {
		return nil, err
	}
	out := predicate.Apply(all, p)
	store.SortNewestFirst(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *conversationRepo) FindFirst(ctx context.Context, p predicate.Predicate) (*model.Conversation, error) {
	all, err := r.load(ctx, "id ASC")
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if p(c) {
			return c, nil
		}
	}
	return nil, nil
}

func (r *conversationRepo) Count(ctx context.Context, p predicate.Predicate) (int, error) {
	all, err := r.load(ctx, "id ASC")
	if err != nil {
		return 0, err
	}
	return predicate.Count(all, p), nil
}

func (r *conversationRepo) Insert(ctx context.Context, c *model.Conversation) error {
	rec := toConversationRecord(c)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	c.ID = rec.ID
	for i := range c.Messages {
		c.Messages[i].ID = rec.Messages[i].ID
		c.Messages[i].ConversationID = rec.ID
	}
	for i := range c.Logs {
		c.Logs[i].ID = rec.Logs[i].ID
		c.Logs[i].ConversationID = rec.ID
	}
	return nil
}

func (r *conversationRepo) Save(ctx context.Context, c *model.Conversation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&conversationRecord{}).Where("id = ?", c.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("conversation", c.ID)
		}

		rec := toConversationRecord(c)
		rec.Messages, rec.Logs = nil, nil
		if err := tx.Omit(clause.Associations).Save(rec).Error; err != nil {
			return fmt.Errorf("failed to update conversation %d: %w", c.ID, err)
		}

		for i := range c.Logs {
			if c.Logs[i].ID != 0 {
				continue
			}
			log := toLogRecord(c.ID, c.Logs[i])
			if err := tx.Create(&log).Error; err != nil {
				return fmt.Errorf("failed to append log: %w", err)
			}
			c.Logs[i].ID = log.ID
			c.Logs[i].ConversationID = c.ID
		}
		return nil
	})
}

func (r *conversationRepo) Logs(ctx context.Context, conversationID int) ([]model.ConversationLog, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&conversationRecord{}).Where("id = ?", conversationID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound("conversation", conversationID)
	}

	var recs []conversationLogRecord
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_time DESC, id DESC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]model.ConversationLog, len(recs))
	for i, rec := range recs {
		out[i] = rec.toModel()
	}
	return out, nil
}

type filterRepo struct {
	db *gorm.DB
}

func (r *filterRepo) withConditions(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Conditions", func(db *gorm.DB) *gorm.DB { return db.Order("condition_index ASC, id ASC") })
}

func (r *filterRepo) Get(ctx context.Context, id int) (*model.Filter, error) {
	var rec filterRecord
	if err := r.withConditions(ctx).First(&rec, id).Error; err != nil {
		return nil, notFound(err, "filter", id)
	}
	return rec.toModel(), nil
}

func (r *filterRepo) List(ctx context.Context) ([]model.Filter, error) {
	var recs []filterRecord
	if err := r.withConditions(ctx).Order("sort_index ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]model.Filter, len(recs))
	for i := range recs {
		out[i] = *recs[i].toModel()
	}
	return out, nil
}

func (r *filterRepo) Create(ctx context.Context, f *model.Filter) error {
	rec := toFilterRecord(f)
	rec.ID = 0
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create filter: %w", err)
	}
	copyFilterIDs(f, rec)
	return nil
}

func (r *filterRepo) Update(ctx context.Context, f *model.Filter) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&filterRecord{}).Where("id = ?", f.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("filter", f.ID)
		}

		rec := toFilterRecord(f)
		conditions := rec.Conditions
		rec.Conditions = nil
		if err := tx.Omit(clause.Associations).Save(rec).Error; err != nil {
			return fmt.Errorf("failed to update filter %d: %w", f.ID, err)
		}
		if err := tx.Where("filter_id = ?", f.ID).Delete(&filterConditionRecord{}).Error; err != nil {
			return err
		}
		if len(conditions) > 0 {
			if err := tx.Create(&conditions).Error; err != nil {
				return fmt.Errorf("failed to replace conditions of filter %d: %w", f.ID, err)
			}
		}
		rec.Conditions = conditions
		copyFilterIDs(f, rec)
		return nil
	})
}

func copyFilterIDs(f *model.Filter, rec *filterRecord) {
	f.ID = rec.ID
	for i := range f.Conditions {
		f.Conditions[i].ID = rec.Conditions[i].ID
		f.Conditions[i].FilterID = rec.ID
	}
}

func (r *filterRepo) Delete(ctx context.Context, id int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("filter_id = ?", id).Delete(&filterConditionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&filterRecord{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("filter", id)
		}
		return nil
	})
}

type fieldRepo struct {
	db *gorm.DB
}

func (r *fieldRepo) Get(ctx context.Context, id int) (*model.ConversationField, error) {
	var rec fieldRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, notFound(err, "field", id)
	}
	f := rec.toModel()
	return &f, nil
}

func (r *fieldRepo) List(ctx context.Context) ([]model.ConversationField, error) {
	var recs []fieldRecord
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]model.ConversationField, len(recs))
	for i, rec := range recs {
		out[i] = rec.toModel()
	}
	return out, nil
}

type directory struct {
	db *gorm.DB
}

func (r *directory) AgentName(ctx context.Context, id int) (string, error) {
	var rec agentRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return "", notFound(err, "agent", id)
	}
	return rec.Name, nil
}

func (r *directory) DepartmentName(ctx context.Context, id int) (string, error) {
	var rec departmentRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return "", notFound(err, "department", id)
	}
	return rec.Name, nil
}

func (r *directory) DepartmentMembers(ctx context.Context, departmentID int) ([]int, error) {
	var ids []int
	if err := r.db.WithContext(ctx).
		Model(&agentRecord{}).
		Where("department_id = ?", departmentID).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
