package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func operationHandlers() repository.ModelHandlers[*operationRecord] {
	return repository.ModelHandlers[*operationRecord]{
		NewRecord: func() *operationRecord {
			return &operationRecord{}
		},
		GetID: func(record *operationRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *operationRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "operation_id"
		},
		GetIdentifierValue: func(record *operationRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.OperationID)
		},
	}
}

func sessionEventHandlers() repository.ModelHandlers[*sessionEventRecord] {
	return repository.ModelHandlers[*sessionEventRecord]{
		NewRecord: func() *sessionEventRecord {
			return &sessionEventRecord{}
		},
		GetID: func(record *sessionEventRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *sessionEventRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *sessionEventRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
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
