// Package alert is the client side of the fink livestream: a Kafka
// consumer that receives schemaless Avro alerts from the broker's
// distribution service and decodes them into generic records.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// Message is one decoded alert together with the topic it arrived on.
type Message struct {
	Topic string
	Alert map[string]interface{}
}

// Consumer receives alerts from the fink broker.
type Consumer struct {
	client    *kgo.Client
	schema    avro.Schema
	logger    hclog.Logger
	closeOnce sync.Once
}

// New creates a consumer subscribed to the given topics. The context
// bounds schema resolution, which may download from the fink servers.
func New(ctx context.Context, cfg Config, topics ...string) (*Consumer, error) {
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("consumer group id is required")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	logger := cfg.Logger.Named("alert-consumer")

	schema := cfg.Schema
	if schema == nil {
		var err error
		schema, err = NewSchemaResolver(SchemaConfig{
			Path:   cfg.SchemaPath,
			Logger: cfg.Logger,
		}).Resolve(ctx)
		if err != nil {
			return nil, err
		}
	}

	brokers := ResolveBrokers(cfg.Brokers)

	// New groups read from the oldest retained alert unless asked to
	// join at the live end.
	offset := kgo.NewOffset().AtStart()
	if cfg.ConsumeFromEnd {
		offset = kgo.NewOffset().AtEnd()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(offset),
		kgo.FetchMaxWait(500 * time.Millisecond),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, kgo.SASL(scram.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsSha512Mechanism()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	logger.Debug("subscribed to alert topics",
		"brokers", brokers,
		"topics", topics,
		"group", cfg.GroupID,
	)

	return &Consumer{
		client: client,
		schema: schema,
		logger: logger,
	}, nil
}

// Poll waits up to timeout for a single alert. A nil Message with a nil
// error means the timeout passed without an alert arriving. A timeout
// of zero or less waits until ctx is done.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	msgs, err := c.Consume(ctx, 1, timeout)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// Consume waits up to timeout for at most max alerts. Fewer alerts, or
// none at all, are returned when the timeout passes first.
func (c *Consumer) Consume(ctx context.Context, max int, timeout time.Duration) ([]Message, error) {
	if max <= 0 {
		return nil, nil
	}

	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var msgs []Message
	for len(msgs) < max && pollCtx.Err() == nil {
		fetches := c.client.PollRecords(pollCtx, max-len(msgs))

		for _, record := range fetches.Records() {
			decoded, err := c.decode(record.Value)
			if err != nil {
				return msgs, fmt.Errorf("decoding alert from %s[%d] at offset %d: %w",
					record.Topic, record.Partition, record.Offset, err)
			}
			msgs = append(msgs, Message{Topic: record.Topic, Alert: decoded})
		}

		for _, fetchErr := range fetches.Errors() {
			if errors.Is(fetchErr.Err, context.DeadlineExceeded) || errors.Is(fetchErr.Err, context.Canceled) {
				continue
			}
			if errors.Is(fetchErr.Err, kgo.ErrClientClosed) {
				return msgs, fmt.Errorf("consumer is closed")
			}
			return msgs, fmt.Errorf("fetching from %s[%d]: %w",
				fetchErr.Topic, fetchErr.Partition, fetchErr.Err)
		}
	}

	// The caller's context ending is an error; our own poll timeout
	// expiring is not.
	if err := ctx.Err(); err != nil {
		return msgs, err
	}
	return msgs, nil
}

func (c *Consumer) decode(value []byte) (map[string]interface{}, error) {
	var decoded map[string]interface{}
	if err := avro.Unmarshal(c.schema, value, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// Close disconnects from the broker. Safe to call more than once.
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		c.client.Close()
	})
}
