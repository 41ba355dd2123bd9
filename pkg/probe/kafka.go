package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// Kafka reports ready once a broker answers a metadata request. A short-
// lived client is created per attempt so a broker that was mid-startup on
// the previous try does not poison later ones with stale connections.
type Kafka struct {
	Brokers []string

	// Topic, when set, must also exist and resolve without error.
	Topic string
}

func (p Kafka) Name() string {
	name := "kafka " + strings.Join(p.Brokers, ",")
	if p.Topic != "" {
		name += " topic " + p.Topic
	}
	return name
}

func (p Kafka) Probe(ctx context.Context) error {
	if len(p.Brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(p.Brokers...),
		kgo.DialTimeout(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("creating kafka client: %w", err)
	}
	defer cl.Close()

	req := kmsg.NewPtrMetadataRequest()
	if p.Topic != "" {
		topic := kmsg.NewMetadataRequestTopic()
		topic.Topic = kmsg.StringPtr(p.Topic)
		req.Topics = append(req.Topics, topic)
	}

	resp, err := req.RequestWith(ctx, cl)
	if err != nil {
		return fmt.Errorf("requesting metadata: %w", err)
	}
	if len(resp.Brokers) == 0 {
		return fmt.Errorf("metadata response lists no brokers")
	}

	for _, t := range resp.Topics {
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil {
			name := ""
			if t.Topic != nil {
				name = *t.Topic
			}
			return fmt.Errorf("topic %q: %w", name, err)
		}
	}

	return nil
}
