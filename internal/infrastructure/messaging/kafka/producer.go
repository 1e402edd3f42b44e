package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bbowles1/HIPPO/internal/config"
	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

var (
	ErrProducerClosed = errors.New(errors.ErrCodeMessagingError, "producer closed")
)

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RunEventProducer publishes a run-completed event for every finished run.
// It satisfies similarity.ReportSink.
type RunEventProducer struct {
	writer WriterInterface
	topic  string
	logger logging.Logger
	closed atomic.Bool
	sent   atomic.Int64
}

// NewRunEventProducer builds a producer over a hash-balanced kafka.Writer so
// that all events for a run id land on the same partition.
func NewRunEventProducer(cfg config.KafkaConfig, log logging.Logger) (*RunEventProducer, error) {
	if err := ValidateProducerConfig(cfg); err != nil {
		return nil, err
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            cfg.MaxAttempts,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			DialTimeout: 10 * time.Second,
		},
	}
	return newRunEventProducer(writer, cfg.Topic, log), nil
}

func newRunEventProducer(w WriterInterface, topic string, log logging.Logger) *RunEventProducer {
	return &RunEventProducer{
		writer: w,
		topic:  topic,
		logger: logging.OrNop(log).Named("kafka"),
	}
}

// Name implements similarity.ReportSink.
func (p *RunEventProducer) Name() string { return "kafka" }

// Publish implements similarity.ReportSink.
func (p *RunEventProducer) Publish(ctx context.Context, report *similarity.RunReport) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if report == nil {
		return errors.New(errors.ErrCodeValidation, "run report is nil")
	}

	env, err := NewEventEnvelope(EventRunCompleted, NewRunCompletedPayload(report))
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(report.RunID)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagingError, "publish run event failed").
			WithDetail(p.topic)
	}
	p.sent.Add(1)

	p.logger.Debug("run event published",
		logging.String("topic", p.topic),
		logging.String("run_id", report.RunID),
		logging.Int64("latency_ms", time.Since(start).Milliseconds()))
	return nil
}

// Sent reports how many events were acknowledged.
func (p *RunEventProducer) Sent() int64 { return p.sent.Load() }

// Close flushes pending writes and closes the writer.  Further calls are no-ops.
func (p *RunEventProducer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}

// ValidateProducerConfig checks the fields the writer cannot default.
func ValidateProducerConfig(cfg config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if err := ValidateTopic(cfg.Topic); err != nil {
		return err
	}
	if cfg.MaxAttempts < 0 {
		return errors.New(errors.ErrCodeValidation, "kafka max_attempts must be >= 0")
	}
	switch cfg.RequiredAcks {
	case -1, 0, 1:
	default:
		return errors.Newf(errors.ErrCodeValidation, "kafka required_acks %d is invalid", cfg.RequiredAcks)
	}
	return nil
}
