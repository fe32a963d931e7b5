package sqlstore

import (
	"time"

	"github.com/goliatone/go-reque/core"
	"github.com/uptrace/bun"
)

type requestRecord struct {
	bun.BaseModel `bun:"table:requests,alias:r"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Reference  string    `bun:"reference,notnull"`
	Method     string    `bun:"method,notnull"`
	Host       string    `bun:"host,notnull"`
	Port       int       `bun:"port,notnull"`
	URI        string    `bun:"uri,notnull"`
	Headers    string    `bun:"headers,notnull"`
	Body       []byte    `bun:"body,notnull"`
	EnqueuedAt time.Time `bun:"enqueued_at,notnull"`
}

func requestRecordFromDomain(entry core.QueueEntry) *requestRecord {
	body := make([]byte, len(entry.Body))
	copy(body, entry.Body)
	return &requestRecord{
		Reference:  entry.Reference,
		Method:     entry.Method,
		Host:       entry.Host,
		Port:       entry.Port,
		URI:        entry.URI,
		Headers:    entry.Headers,
		Body:       body,
		EnqueuedAt: entry.EnqueuedAt.UTC(),
	}
}

func (r *requestRecord) toDomain() core.QueueEntry {
	if r == nil {
		return core.QueueEntry{}
	}
	return core.QueueEntry{
		ID:         r.ID,
		Reference:  r.Reference,
		Method:     r.Method,
		Host:       r.Host,
		Port:       r.Port,
		URI:        r.URI,
		Headers:    r.Headers,
		Body:       append([]byte(nil), r.Body...),
		EnqueuedAt: r.EnqueuedAt.UTC(),
	}
}
