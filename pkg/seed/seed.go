// Package seed publishes Avro alert fixtures to Kafka so an integration
// run has data waiting on its topics before the test module starts
// consuming.
//
// Fixtures are Avro object container files. The first record of each
// file is re-encoded without the container framing and produced to a
// topic derived from the record's classification field, matching the
// wire format the broker's distribution path emits.
package seed

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

const (
	// DefaultPattern matches the alert container files shipped with the
	// client's test data.
	DefaultPattern = "*.avro"

	// DefaultTopicField is the alert field whose value names the topic a
	// fixture is published to.
	DefaultTopicField = "cross_match_alerts_per_batch"
)

// Fixture is one alert container file prepared for publishing.
type Fixture struct {
	Path    string
	Topic   string
	Schema  avro.Schema
	Record  map[string]interface{}
	Payload []byte
}

// Report describes what a publish run pushed to the cluster.
type Report struct {
	Published int
	Topics    []string
}

// Config carries the dependencies and knobs for a Seeder.
type Config struct {
	// FS is the filesystem fixtures are read from. Defaults to the OS
	// filesystem.
	FS afero.Fs

	// Brokers lists the Kafka bootstrap addresses. Required.
	Brokers []string

	// Dir is the directory scanned for fixtures. Required.
	Dir string

	// Pattern is the glob applied inside Dir. Defaults to DefaultPattern.
	Pattern string

	// Topic, when set, publishes every fixture to this topic instead of
	// deriving one per fixture.
	Topic string

	// TopicField names the alert field a fixture's topic is derived
	// from. Defaults to DefaultTopicField.
	TopicField string

	// Partitions and Replicas apply when topics are created. Both
	// default to 1, which is what a single-node test broker supports.
	Partitions int32
	Replicas   int16

	Logger hclog.Logger
}

// Seeder loads alert fixtures and publishes them to Kafka.
type Seeder struct {
	fs         afero.Fs
	brokers    []string
	dir        string
	pattern    string
	topic      string
	topicField string
	partitions int32
	replicas   int16
	logger     hclog.Logger
}

// New validates cfg and returns a ready Seeder.
func New(cfg Config) (*Seeder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("fixture directory is required")
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if cfg.TopicField == "" {
		cfg.TopicField = DefaultTopicField
	}
	if cfg.Partitions == 0 {
		cfg.Partitions = 1
	}
	if cfg.Replicas == 0 {
		cfg.Replicas = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Seeder{
		fs:         cfg.FS,
		brokers:    cfg.Brokers,
		dir:        cfg.Dir,
		pattern:    cfg.Pattern,
		topic:      cfg.Topic,
		topicField: cfg.TopicField,
		partitions: cfg.Partitions,
		replicas:   cfg.Replicas,
		logger:     cfg.Logger.Named("seed"),
	}, nil
}

// LoadFixtures scans the fixture directory and prepares every matching
// container file for publishing. Paths are processed in sorted order so
// repeated runs publish identically.
func (s *Seeder) LoadFixtures() ([]Fixture, error) {
	paths, err := afero.Glob(s.fs, filepath.Join(s.dir, s.pattern))
	if err != nil {
		return nil, fmt.Errorf("scanning %s for %s: %w", s.dir, s.pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no alert fixtures matching %s in %s", s.pattern, s.dir)
	}
	sort.Strings(paths)

	fixtures := make([]Fixture, 0, len(paths))
	for _, path := range paths {
		fx, err := s.loadFixture(path)
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, fx)
	}
	return fixtures, nil
}

func (s *Seeder) loadFixture(path string) (Fixture, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("opening fixture %s: %w", path, err)
	}
	defer f.Close()

	dec, err := ocf.NewDecoder(f)
	if err != nil {
		return Fixture{}, fmt.Errorf("reading avro container %s: %w", path, err)
	}
	if !dec.HasNext() {
		return Fixture{}, fmt.Errorf("fixture %s holds no records", path)
	}

	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		return Fixture{}, fmt.Errorf("decoding first record of %s: %w", path, err)
	}

	schemaJSON, ok := dec.Metadata()["avro.schema"]
	if !ok {
		return Fixture{}, fmt.Errorf("fixture %s carries no writer schema", path)
	}
	schema, err := avro.Parse(string(schemaJSON))
	if err != nil {
		return Fixture{}, fmt.Errorf("parsing writer schema of %s: %w", path, err)
	}

	payload, err := avro.Marshal(schema, record)
	if err != nil {
		return Fixture{}, fmt.Errorf("re-encoding record of %s: %w", path, err)
	}

	topic, err := s.topicFor(path, record)
	if err != nil {
		return Fixture{}, err
	}

	return Fixture{
		Path:    path,
		Topic:   topic,
		Schema:  schema,
		Record:  record,
		Payload: payload,
	}, nil
}

func (s *Seeder) topicFor(path string, record map[string]interface{}) (string, error) {
	if s.topic != "" {
		return s.topic, nil
	}
	v, ok := record[s.topicField]
	if !ok {
		return "", fmt.Errorf("fixture %s has no %s field to derive a topic from", path, s.topicField)
	}
	raw, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("fixture %s field %s is %T, want string", path, s.topicField, v)
	}
	topic := LegalTopicName(raw)
	if topic == "" {
		return "", fmt.Errorf("fixture %s field %s %q yields an empty topic name", path, s.topicField, raw)
	}
	return topic, nil
}

// Publish loads the fixtures, makes sure their topics exist, and produces
// one record per fixture. Topics that already exist are left alone.
func (s *Seeder) Publish(ctx context.Context) (*Report, error) {
	fixtures, err := s.LoadFixtures()
	if err != nil {
		return nil, err
	}
	topics := Topics(fixtures)

	cl, err := kgo.NewClient(kgo.SeedBrokers(s.brokers...))
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	defer cl.Close()

	if err := s.ensureTopics(ctx, cl, topics); err != nil {
		return nil, err
	}

	for _, fx := range fixtures {
		record := &kgo.Record{Topic: fx.Topic, Value: fx.Payload}
		if err := cl.ProduceSync(ctx, record).FirstErr(); err != nil {
			return nil, fmt.Errorf("publishing %s to %s: %w", filepath.Base(fx.Path), fx.Topic, err)
		}
		s.logger.Debug("published alert fixture",
			"fixture", filepath.Base(fx.Path),
			"topic", fx.Topic,
			"bytes", len(fx.Payload))
	}

	s.logger.Info("seeded alert topics", "fixtures", len(fixtures), "topics", topics)
	return &Report{Published: len(fixtures), Topics: topics}, nil
}

func (s *Seeder) ensureTopics(ctx context.Context, cl *kgo.Client, topics []string) error {
	req := kmsg.NewPtrCreateTopicsRequest()
	for _, name := range topics {
		t := kmsg.NewCreateTopicsRequestTopic()
		t.Topic = name
		t.NumPartitions = s.partitions
		t.ReplicationFactor = s.replicas
		req.Topics = append(req.Topics, t)
	}

	resp, err := req.RequestWith(ctx, cl)
	if err != nil {
		return fmt.Errorf("creating topics: %w", err)
	}
	for _, t := range resp.Topics {
		err := kerr.ErrorForCode(t.ErrorCode)
		if err == nil || err == kerr.TopicAlreadyExists {
			continue
		}
		return fmt.Errorf("creating topic %s: %w", t.Topic, err)
	}
	return nil
}

// Topics returns the sorted set of topics the fixtures publish to.
func Topics(fixtures []Fixture) []string {
	seen := make(map[string]struct{}, len(fixtures))
	var topics []string
	for _, fx := range fixtures {
		if _, ok := seen[fx.Topic]; ok {
			continue
		}
		seen[fx.Topic] = struct{}{}
		topics = append(topics, fx.Topic)
	}
	sort.Strings(topics)
	return topics
}
