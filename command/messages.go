package command

import (
	"strings"

	"github.com/goliatone/go-reque/core"
)

const (
	TypeDispatchCycle = "reque.command.dispatch.cycle"
	TypeIngestRequest = "reque.command.request.ingest"
)

// DispatchCycleMessage asks for one out-of-band dispatch cycle.
type DispatchCycleMessage struct{}

func (DispatchCycleMessage) Type() string { return TypeDispatchCycle }

func (DispatchCycleMessage) Validate() error { return nil }

type IngestRequestMessage struct {
	Request core.InboundRequest
}

func (IngestRequestMessage) Type() string { return TypeIngestRequest }

func (m IngestRequestMessage) Validate() error {
	if strings.TrimSpace(m.Request.Method) == "" {
		return commandValidationError("method", "method is required")
	}
	if m.Request.Port < 0 || m.Request.Port > 65535 {
		return commandValidationError("port", "port must be between 0 and 65535")
	}
	return nil
}
