package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-reque/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// QueueStore persists entries in the requests table. Every operation is a
// single statement, so the database provides the atomicity.
type QueueStore struct {
	db   *bun.DB
	repo repository.Repository[*requestRecord]
	now  func() time.Time
}

func NewQueueStore(db *bun.DB) (*QueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*requestRecord](db, requestHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid request repository wiring: %w", err)
		}
	}
	return &QueueStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *QueueStore) Enqueue(ctx context.Context, entry core.QueueEntry) (int64, error) {
	if s == nil || s.db == nil {
		return 0, core.StoreError(nil, "sqlstore: queue store is not configured", nil)
	}
	if strings.TrimSpace(entry.Reference) == "" {
		entry.Reference = uuid.NewString()
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = s.now()
	}
	record := requestRecordFromDomain(entry)

	res, err := s.db.NewInsert().Model(record).Returning("id").Exec(ctx)
	if err != nil {
		return 0, core.StoreError(err, "sqlstore: insert request failed", map[string]any{
			"reference": record.Reference,
		})
	}
	if record.ID == 0 && res != nil {
		if id, idErr := res.LastInsertId(); idErr == nil {
			record.ID = id
		}
	}
	if record.ID == 0 {
		return 0, core.StoreError(nil, "sqlstore: insert did not return an id", map[string]any{
			"reference": record.Reference,
		})
	}
	return record.ID, nil
}

func (s *QueueStore) PeekOldest(ctx context.Context) (core.QueueEntry, bool, error) {
	if s == nil || s.db == nil {
		return core.QueueEntry{}, false, core.StoreError(nil, "sqlstore: queue store is not configured", nil)
	}
	record := &requestRecord{}
	err := s.db.NewSelect().
		Model(record).
		OrderExpr("?TableAlias.id ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.QueueEntry{}, false, nil
	}
	if err != nil {
		return core.QueueEntry{}, false, core.StoreError(err, "sqlstore: select oldest request failed", nil)
	}
	return record.toDomain(), true, nil
}

func (s *QueueStore) Delete(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return core.StoreError(nil, "sqlstore: queue store is not configured", nil)
	}
	if _, err := s.db.NewDelete().
		Model((*requestRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return core.StoreError(err, "sqlstore: delete request failed", map[string]any{"id": id})
	}
	return nil
}

func (s *QueueStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, core.StoreError(nil, "sqlstore: queue store is not configured", nil)
	}
	count, err := s.db.NewSelect().Model((*requestRecord)(nil)).Count(ctx)
	if err != nil {
		return 0, core.StoreError(err, "sqlstore: count requests failed", nil)
	}
	return count, nil
}

func (s *QueueStore) List(ctx context.Context, limit int, offset int) ([]core.QueueEntry, error) {
	if s == nil || s.repo == nil {
		return nil, core.StoreError(nil, "sqlstore: queue store is not configured", nil)
	}
	if offset < 0 {
		offset = 0
	}
	selectors := []repository.SelectCriteria{repository.OrderBy("id ASC")}
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, offset))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, core.StoreError(err, "sqlstore: list requests failed", nil)
	}
	out := make([]core.QueueEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// FindByReference looks an entry up by the UUID handed out at ingestion.
func (s *QueueStore) FindByReference(ctx context.Context, reference string) (core.QueueEntry, bool, error) {
	if s == nil || s.repo == nil {
		return core.QueueEntry{}, false, core.StoreError(nil, "sqlstore: queue store is not configured", nil)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("reference", "=", strings.TrimSpace(reference)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.QueueEntry{}, false, core.StoreError(err, "sqlstore: find request failed", map[string]any{
			"reference": reference,
		})
	}
	if len(records) == 0 {
		return core.QueueEntry{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *QueueStore) Stats(ctx context.Context) (core.QueueStats, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return core.QueueStats{}, err
	}
	stats := core.QueueStats{Depth: count, ObservedAt: s.now()}
	oldest, found, err := s.PeekOldest(ctx)
	if err != nil {
		return core.QueueStats{}, err
	}
	if found {
		enqueuedAt := oldest.EnqueuedAt
		stats.OldestID = oldest.ID
		stats.OldestAt = &enqueuedAt
	}
	return stats, nil
}

func (s *QueueStore) DB() *bun.DB {
	if s == nil {
		return nil
	}
	return s.db
}
