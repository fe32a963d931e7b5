package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[DispatchCycleMessage] = (*DispatchCycleCommand)(nil)
	_ gocmd.Commander[IngestRequestMessage] = (*IngestRequestCommand)(nil)
)
