// Package kafkabus carries broadcast updates over a Kafka topic using
// sarama. Every instance reads every partition from the newest offset, so
// each instance sees each update published while it is running.
package kafkabus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-logr/logr"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "goauthz.permission-updates"

var (
	ErrNoBrokers    = errors.New("kafka brokers are required")
	ErrNoPartitions = errors.New("kafka topic has no partitions")
)

// Config configures a Bus.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	Logger   logr.Logger
}

// Bus implements broadcast.Transport on a Kafka topic.
type Bus struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	topic    string
	log      logr.Logger
}

// New dials the brokers and returns a Bus.
func New(cfg Config) (*Bus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	consumer, err := sarama.NewConsumer(cfg.Brokers, sc)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return NewWithClients(producer, consumer, cfg.Topic, cfg.Logger), nil
}

// NewWithClients wraps existing sarama clients. The Bus takes ownership and
// closes them in Close.
func NewWithClients(producer sarama.SyncProducer, consumer sarama.Consumer, topic string, log logr.Logger) *Bus {
	if topic == "" {
		topic = DefaultTopic
	}
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Bus{producer: producer, consumer: consumer, topic: topic, log: log}
}

// Topic returns the topic name.
func (b *Bus) Topic() string {
	return b.topic
}

// Publish produces payload to the topic and waits for the leader ack.
func (b *Bus) Publish(_ context.Context, payload []byte) error {
	_, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("produce to %s: %w", b.topic, err)
	}
	return nil
}

// Subscribe consumes every partition of the topic from the newest offset
// until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, deliver func(payload []byte)) error {
	partitions, err := b.consumer.Partitions(b.topic)
	if err != nil {
		return fmt.Errorf("list partitions of %s: %w", b.topic, err)
	}
	if len(partitions) == 0 {
		return ErrNoPartitions
	}

	pcs := make([]sarama.PartitionConsumer, 0, len(partitions))
	for _, p := range partitions {
		pc, err := b.consumer.ConsumePartition(b.topic, p, sarama.OffsetNewest)
		if err != nil {
			for _, open := range pcs {
				_ = open.Close()
			}
			return fmt.Errorf("consume %s/%d: %w", b.topic, p, err)
		}
		pcs = append(pcs, pc)
	}

	// deliver is not required to be goroutine-safe.
	var deliverMu sync.Mutex
	var wg sync.WaitGroup
	for _, pc := range pcs {
		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			b.consumePartition(ctx, pc, func(p []byte) {
				deliverMu.Lock()
				defer deliverMu.Unlock()
				deliver(p)
			})
		}(pc)
	}

	<-ctx.Done()
	for _, pc := range pcs {
		pc.AsyncClose()
	}
	wg.Wait()
	return nil
}

func (b *Bus) consumePartition(ctx context.Context, pc sarama.PartitionConsumer, deliver func([]byte)) {
	msgs, errs := pc.Messages(), pc.Errors()
	for msgs != nil || errs != nil {
		select {
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			if ctx.Err() == nil {
				b.HandleMessage(msg, deliver)
			}
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.log.Error(cerr.Err, "kafka consumer error", "topic", cerr.Topic, "partition", cerr.Partition)
		}
	}
}

// HandleMessage passes a consumed message's value to deliver.
func (b *Bus) HandleMessage(msg *sarama.ConsumerMessage, deliver func([]byte)) {
	if msg == nil || len(msg.Value) == 0 {
		return
	}
	deliver(msg.Value)
}

// Close closes the producer and the consumer.
func (b *Bus) Close() error {
	return errors.Join(b.producer.Close(), b.consumer.Close())
}
