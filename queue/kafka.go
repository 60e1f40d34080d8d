package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/workers"
)

const dispatchBackoff = 500 * time.Millisecond

// MessageWriter is the part of *kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the part of *kafka.Reader the consumer needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}

// KafkaPublisher dispatches upload jobs by writing them to a topic
type KafkaPublisher struct {
	writer MessageWriter
	log    *logger.Logger
}

var _ workers.Dispatcher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(writer MessageWriter, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log.WithComponent("queue.publisher")}
}

func (p *KafkaPublisher) Dispatch(ctx context.Context, job workers.UploadJob) error {
	msg, err := EncodeJob(job)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish upload job for photo %d: %w", job.PhotoID, err)
	}
	p.log.Info("published upload job", "photo_id", job.PhotoID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads upload jobs from a topic and hands them to a local
// dispatcher, normally the UploadRunner. A message is committed once the
// dispatcher accepted it or rejected it as a duplicate.
type KafkaConsumer struct {
	reader MessageReader
	target workers.Dispatcher
	log    *logger.Logger
}

func NewKafkaConsumer(reader MessageReader, target workers.Dispatcher, log *logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, target: target, log: log.WithComponent("queue.consumer")}
}

// Run blocks until ctx is cancelled
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("error reading message", "error", err)
			if !sleepCtx(ctx, dispatchBackoff) {
				return nil
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("error handling message", "offset", msg.Offset, "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("failed to commit message", "offset", msg.Offset, "error", err)
		}
	}
}

// handle dispatches one message, waiting while the local queue is full
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) error {
	job, err := DecodeJob(msg)
	if err != nil {
		// a malformed message can never succeed; log and move past it
		c.log.Error("dropping malformed upload job", "offset", msg.Offset, "error", err)
		return nil
	}

	for {
		err := c.target.Dispatch(ctx, job)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, workers.ErrAlreadyQueued):
			c.log.Info("skipping duplicate upload job", "photo_id", job.PhotoID)
			return nil
		case errors.Is(err, workers.ErrQueueFull):
			if !sleepCtx(ctx, dispatchBackoff) {
				return ctx.Err()
			}
		default:
			return err
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
