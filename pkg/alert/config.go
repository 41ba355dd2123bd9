package alert

import (
	"os"
	"strings"

	"github.com/hamba/avro/v2"
	"github.com/hashicorp/go-hclog"
)

// EnvBrokers overrides the bootstrap servers for every consumer in the
// process. Useful when the test broker does not listen on the default
// fink ports.
const EnvBrokers = "FINK_KAFKA_BROKERS"

// DefaultBrokers are the local fink servers used when nothing else is
// configured.
var DefaultBrokers = []string{
	"localhost:9093",
	"localhost:9094",
	"localhost:9095",
}

// Config holds configuration for an alert consumer.
type Config struct {
	// Brokers lists the Kafka bootstrap addresses. When empty, the
	// FINK_KAFKA_BROKERS environment variable and then DefaultBrokers
	// apply.
	Brokers []string

	// GroupID is the Kafka consumer group. Required.
	GroupID string

	// Username and Password enable SASL SCRAM-SHA-512 authentication
	// when both are set.
	Username string
	Password string

	// ConsumeFromEnd starts a new group at the live end of each topic
	// instead of the oldest retained alert.
	ConsumeFromEnd bool

	// Schema decodes incoming alerts. When nil, a SchemaResolver built
	// from SchemaPath provides one.
	Schema avro.Schema

	// SchemaPath points at a local schema file. Only consulted when
	// Schema is nil.
	SchemaPath string

	// Logger
	Logger hclog.Logger
}

// ResolveBrokers returns the bootstrap servers for a consumer.
// It checks the environment first, then the configured list, then the
// default fink servers.
func ResolveBrokers(configured []string) []string {
	// Try environment variable first
	if env := os.Getenv(EnvBrokers); env != "" {
		return splitBrokers(env)
	}

	// Fall back to configured brokers
	if len(configured) > 0 {
		return configured
	}

	// Default
	return append([]string(nil), DefaultBrokers...)
}

func splitBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
