package kafka

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

const (
	TopicRunCompleted = "hippo.similarity.run.completed"

	EventRunCompleted = "similarity.run.completed"

	eventSource   = "hippo"
	schemaVersion = "v1"
)

// Kafka topic names: at most 249 characters of [a-zA-Z0-9._-].
var topicPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,249}$`)

// ValidateTopic rejects names the broker would refuse.
func ValidateTopic(name string) error {
	if name == "" {
		return errors.New(errors.ErrCodeValidation, "kafka topic required")
	}
	if name == "." || name == ".." || !topicPattern.MatchString(name) {
		return errors.Newf(errors.ErrCodeValidation, "kafka topic %q is invalid", name)
	}
	return nil
}

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// RunCompletedPayload is the body of a similarity.run.completed event.
type RunCompletedPayload struct {
	RunID       string                 `json:"run_id"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	InputPath   string                 `json:"input_path,omitempty"`
	OutputPath  string                 `json:"output_path"`
	Cases       []string               `json:"cases"`
	Diagnostics similarity.Diagnostics `json:"diagnostics"`
}

// NewRunCompletedPayload copies the publishable parts of r.
func NewRunCompletedPayload(r *similarity.RunReport) RunCompletedPayload {
	p := RunCompletedPayload{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt.UTC(),
		FinishedAt:  r.FinishedAt.UTC(),
		InputPath:   r.InputPath,
		OutputPath:  r.OutputPath,
		Cases:       []string{},
		Diagnostics: r.Diagnostics,
	}
	if r.Matrix != nil {
		p.Cases = r.Matrix.IDs()
	}
	return p
}

// NewEventEnvelope wraps payload under a fresh event id.
func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "event payload is empty")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage encodes the envelope as a keyed kafka message.  The writer
// supplies the topic.
func (e *EventEnvelope) ToMessage(key string) (kafka.Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: val,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "source_service", Value: []byte(e.Source)},
			{Key: "schema_version", Value: []byte(e.SchemaVersion)},
		},
		Time: e.Timestamp,
	}, nil
}

// MessageToEventEnvelope decodes a message produced by ToMessage.
func MessageToEventEnvelope(msg kafka.Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}
