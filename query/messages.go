package query

const (
	TypeQueueStats  = "reque.query.queue.stats"
	TypePeekOldest  = "reque.query.queue.oldest"
	TypeListEntries = "reque.query.queue.list"

	MaxListLimit = 500
)

type QueueStatsMessage struct{}

func (QueueStatsMessage) Type() string { return TypeQueueStats }

func (QueueStatsMessage) Validate() error { return nil }

type PeekOldestMessage struct{}

func (PeekOldestMessage) Type() string { return TypePeekOldest }

func (PeekOldestMessage) Validate() error { return nil }

// ListEntriesMessage pages through the queue in id order. A zero limit uses
// the service default.
type ListEntriesMessage struct {
	Limit  int
	Offset int
}

func (ListEntriesMessage) Type() string { return TypeListEntries }

func (m ListEntriesMessage) Validate() error {
	if m.Limit < 0 || m.Limit > MaxListLimit {
		return queryValidationError("limit", "limit must be between 0 and 500")
	}
	if m.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}
