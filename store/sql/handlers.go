package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// requestHandlers key the repository on the entry reference. The numeric id
// stays the ordering key and is only touched through bun queries.
func requestHandlers() repository.ModelHandlers[*requestRecord] {
	return repository.ModelHandlers[*requestRecord]{
		NewRecord: func() *requestRecord {
			return &requestRecord{}
		},
		GetID: func(record *requestRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.Reference)
		},
		SetID: func(record *requestRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.Reference = id.String()
		},
		GetIdentifier: func() string {
			return "reference"
		},
		GetIdentifierValue: func(record *requestRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.Reference)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
