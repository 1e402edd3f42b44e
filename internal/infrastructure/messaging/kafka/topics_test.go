package kafka

import (
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbowles1/HIPPO/internal/domain/similarity"
)

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		ok    bool
	}{
		{"default", TopicRunCompleted, true},
		{"underscores", "hippo_runs-v2", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"space", "hippo runs", false},
		{"too long", strings.Repeat("a", 250), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewRunCompletedPayload_NilMatrix(t *testing.T) {
	p := NewRunCompletedPayload(&similarity.RunReport{RunID: "r1"})
	assert.NotNil(t, p.Cases)
	assert.Empty(t, p.Cases)
}

func TestEventEnvelope_ToMessageHeaders(t *testing.T) {
	env, err := NewEventEnvelope(EventRunCompleted, map[string]int{"n": 1})
	require.NoError(t, err)

	msg, err := env.ToMessage("k")
	require.NoError(t, err)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventRunCompleted, headers["event_type"])
	assert.Equal(t, "hippo", headers["source_service"])
	assert.Equal(t, "v1", headers["schema_version"])
	assert.Equal(t, env.Timestamp, msg.Time)
}

func TestEventEnvelope_DecodeEmptyPayload(t *testing.T) {
	env := &EventEnvelope{}
	var out RunCompletedPayload
	assert.Error(t, env.DecodePayload(&out))
}

func TestMessageToEventEnvelope_Errors(t *testing.T) {
	_, err := MessageToEventEnvelope(kafka.Message{})
	assert.Error(t, err)

	_, err = MessageToEventEnvelope(kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}
