package sqlstore

import "github.com/goliatone/go-reque/core"

var (
	_ core.QueueStore       = (*QueueStore)(nil)
	_ core.QueueInspector   = (*QueueStore)(nil)
	_ core.QueueStatsReader = (*QueueStore)(nil)
)
