package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"proofsy/internal/domain"
	cryptoinfra "proofsy/internal/infra/crypto"
)

// Payload is the provider-neutral form of one anchor record.
type Payload struct {
	Record        domain.AnchorRecord
	MetadataJSON  []byte
	DataJSON      []byte
	CanonicalJSON []byte
	HashHex       string
}

func BuildPayload(record domain.AnchorRecord) (Payload, error) {
	if record.JobID == "" {
		return Payload{}, errors.New("jobId is required")
	}
	if !record.EventType.Valid() {
		return Payload{}, errors.New("eventType is invalid")
	}
	if record.IdempotencyKey == "" {
		return Payload{}, errors.New("idempotencyKey is required")
	}
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	data := map[string]any{
		"eventType":      string(record.EventType),
		"jobId":          record.JobID,
		"taskType":       record.TaskType,
		"executor":       record.Executor,
		"occurredAt":     record.OccurredAt.UTC().Format(time.RFC3339Nano),
		"metadata":       metadata,
		"idempotencyKey": record.IdempotencyKey,
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return Payload{}, &domain.EncodingError{Err: err}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return Payload{}, &domain.EncodingError{Err: err}
	}
	canonical, err := cryptoinfra.CanonicalizeJSON(dataJSON)
	if err != nil {
		return Payload{}, err
	}
	sum := sha256.Sum256(canonical)
	return Payload{
		Record:        record,
		MetadataJSON:  metadataJSON,
		DataJSON:      dataJSON,
		CanonicalJSON: canonical,
		HashHex:       hex.EncodeToString(sum[:]),
	}, nil
}
