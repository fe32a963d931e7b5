package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-reque/core"
)

var (
	_ gocmd.Querier[QueueStatsMessage, core.QueueStats]    = (*QueueStatsQuery)(nil)
	_ gocmd.Querier[PeekOldestMessage, OldestEntry]        = (*PeekOldestQuery)(nil)
	_ gocmd.Querier[ListEntriesMessage, []core.QueueEntry] = (*ListEntriesQuery)(nil)
	_ QueueReader                                          = (*core.Service)(nil)
)
