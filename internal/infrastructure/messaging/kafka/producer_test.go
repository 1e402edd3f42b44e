package kafka

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbowles1/HIPPO/internal/config"
	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc func() error
	closes    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closes++
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func newTestReport(t *testing.T) *similarity.RunReport {
	t.Helper()
	m, err := similarity.NewMatrix([]string{"case1", "case2"}, [][]similarity.Score{
		{similarity.Defined(2.5)},
		{},
	})
	require.NoError(t, err)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &similarity.RunReport{
		RunID:      "run-42",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		InputPath:  "cases.tsv",
		OutputPath: "matrix.tsv",
		Matrix:     m,
		Diagnostics: similarity.Diagnostics{
			UnmappedPercent:   12.5,
			UnmappedInstances: 1,
			MappedInstances:   8,
			PairsScored:       1,
		},
	}
}

func TestValidateProducerConfig(t *testing.T) {
	valid := config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: TopicRunCompleted, RequiredAcks: 1}

	tests := []struct {
		name    string
		mutate  func(*config.KafkaConfig)
		wantErr bool
	}{
		{"valid", func(*config.KafkaConfig) {}, false},
		{"no brokers", func(c *config.KafkaConfig) { c.Brokers = nil }, true},
		{"no topic", func(c *config.KafkaConfig) { c.Topic = "" }, true},
		{"bad topic", func(c *config.KafkaConfig) { c.Topic = "runs/completed" }, true},
		{"negative attempts", func(c *config.KafkaConfig) { c.MaxAttempts = -1 }, true},
		{"bad acks", func(c *config.KafkaConfig) { c.RequiredAcks = 2 }, true},
		{"acks all", func(c *config.KafkaConfig) { c.RequiredAcks = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := ValidateProducerConfig(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewRunEventProducer_InvalidConfig(t *testing.T) {
	_, err := NewRunEventProducer(config.KafkaConfig{Topic: TopicRunCompleted}, nil)
	assert.Error(t, err)
}

func TestNewRunEventProducer_Valid(t *testing.T) {
	p, err := NewRunEventProducer(config.KafkaConfig{
		Brokers:     []string{"localhost:9092"},
		Topic:       TopicRunCompleted,
		BatchSize:   1,
		MaxAttempts: 3,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "kafka", p.Name())

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, TopicRunCompleted, w.Topic)
	assert.Equal(t, kafka.RequireNone, w.RequiredAcks)
	require.NoError(t, p.Close())
}

func TestPublish_Success(t *testing.T) {
	var captured []kafka.Message
	w := &mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		captured = append(captured, msgs...)
		return nil
	}}
	p := newRunEventProducer(w, TopicRunCompleted, nil)

	require.NoError(t, p.Publish(context.Background(), newTestReport(t)))
	require.Len(t, captured, 1)
	assert.Equal(t, int64(1), p.Sent())

	msg := captured[0]
	assert.Equal(t, "run-42", string(msg.Key))
	assert.Empty(t, msg.Topic, "topic is set on the writer")

	env, err := MessageToEventEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, EventRunCompleted, env.EventType)
	assert.Equal(t, "hippo", env.Source)
	assert.NotEmpty(t, env.EventID)

	var payload RunCompletedPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "run-42", payload.RunID)
	assert.Equal(t, "matrix.tsv", payload.OutputPath)
	assert.Equal(t, []string{"case1", "case2"}, payload.Cases)
	assert.InDelta(t, 12.5, payload.Diagnostics.UnmappedPercent, 1e-9)
	assert.Equal(t, 3*time.Second, payload.FinishedAt.Sub(payload.StartedAt))
}

func TestPublish_WriteError(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return stderrors.New("leader not available")
	}}
	p := newRunEventProducer(w, TopicRunCompleted, nil)

	err := p.Publish(context.Background(), newTestReport(t))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
	assert.Contains(t, err.Error(), "leader not available")
	assert.Zero(t, p.Sent())
}

func TestPublish_NilReport(t *testing.T) {
	p := newRunEventProducer(&mockKafkaWriter{}, TopicRunCompleted, nil)
	assert.Error(t, p.Publish(context.Background(), nil))
}

func TestPublish_AfterClose(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newRunEventProducer(w, TopicRunCompleted, nil)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closes)

	err := p.Publish(context.Background(), newTestReport(t))
	assert.ErrorIs(t, err, ErrProducerClosed)
}
