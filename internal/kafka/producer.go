package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka producer closed")

// Publisher is what components depend on instead of *Producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

type Producer struct {
	w     *kafka.Writer
	topic string
	inbox chan kafka.Message
	log   *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	closeCh  chan struct{}
}

var _ Publisher = (*Producer)(nil)

func NewProducer(brokers []string, topic string, buf int, logger *zap.Logger) *Producer {
	logger = logger.With(zap.String("component", "kafka-producer"), zap.String("topic", topic))
	p := &Producer{
		topic:   topic,
		inbox:   make(chan kafka.Message, buf),
		log:     logger,
		stop:    make(chan struct{}),
		closeCh: make(chan struct{}),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion:   p.completion,
		ErrorLogger:  kafka.LoggerFunc(logger.Sugar().Errorf),
	}
	return p
}

func (p *Producer) completion(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.log.Error("Failed to deliver message", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// Start runs the writer loop until Close is called or ctx is done. Messages
// already queued are flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case m := <-p.inbox:
				p.write(m)
			case <-p.stop:
				p.drain()
				return
			case <-ctx.Done():
				p.drain()
				return
			}
		}
	}()
}

func (p *Producer) drain() {
	defer func() {
		if err := p.w.Close(); err != nil {
			p.log.Warn("Closing kafka writer", zap.Error(err))
		}
	}()
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Error("Failed to enqueue message", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// Publish queues a message. It blocks while the buffer is full.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case <-p.stop:
		return ErrProducerClosed
	default:
	}
	select {
	case p.inbox <- m:
		return nil
	case <-p.stop:
		return ErrProducerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages; the loop flushes what is queued.
func (p *Producer) Close() { p.stopOnce.Do(func() { close(p.stop) }) }

// WaitClosed blocks until the writer loop has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
