// Package config loads and validates harness configuration. Two modes
// exist: an explicit HCL file, and a zero-config mode where every path
// is derived from the FINK_CLIENT_HOME environment variable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/cAbhi15/fink-client/pkg/alert"
	"github.com/cAbhi15/fink-client/pkg/coverage"
	"github.com/cAbhi15/fink-client/pkg/probe"
	"github.com/cAbhi15/fink-client/pkg/seed"
)

// EnvHome names the environment variable pointing at the fink-client
// checkout the harness operates on.
const EnvHome = "FINK_CLIENT_HOME"

// DefaultProject is the fixed compose project namespace. Sharing one
// name across runs means a second invocation converges on the same
// container group instead of leaking a parallel one.
const DefaultProject = "fink-int-test"

// Paths derived from the home directory when not configured, matching
// the layout of a fink-client checkout.
const (
	defaultComposeFile = "tests/docker-compose-kafka.yml"
	defaultFixturesDir = "tests/data"
	defaultCoverageDir = "coverage"
)

// Probe types accepted in probe blocks.
const (
	ProbeTCP   = "tcp"
	ProbeHTTP  = "http"
	ProbeKafka = "kafka"
)

const (
	defaultStartTimeout    = 5 * time.Minute
	defaultReadyTimeout    = 2 * time.Minute
	defaultStopTimeout     = 30 * time.Second
	defaultTeardownTimeout = 3 * time.Minute
)

// ErrHomeUnset is returned by FromEnv when FINK_CLIENT_HOME is missing.
// It fires before any container operation.
var ErrHomeUnset = fmt.Errorf("%s is not set", EnvHome)

// projectNameRe is the charset compose accepts for project names.
var projectNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config is the root harness configuration.
type Config struct {
	// Project is the compose project namespace. Defaults to
	// DefaultProject.
	Project string `hcl:"project,optional"`

	// Home is the fink-client checkout the harness operates on. Paths
	// left unset elsewhere are derived from it.
	Home string `hcl:"home,optional"`

	Compose  *ComposeConfig  `hcl:"compose,block"`
	Test     *TestConfig     `hcl:"test,block"`
	Coverage *CoverageConfig `hcl:"coverage,block"`
	Fixtures *FixturesConfig `hcl:"fixtures,block"`
	Probes   []ProbeConfig   `hcl:"probe,block"`
	Timeouts *TimeoutsConfig `hcl:"timeouts,block"`

	// Resolved during load from the timeouts and test blocks. Not part
	// of the HCL surface.
	StartTimeout    time.Duration
	ReadyTimeout    time.Duration
	StopTimeout     time.Duration
	TeardownTimeout time.Duration
	TestTimeout     time.Duration
}

// ComposeConfig describes the dependency group.
type ComposeConfig struct {
	// File is the compose file path. Defaults to
	// tests/docker-compose-kafka.yml under the home directory.
	File string `hcl:"file,optional"`

	// Command overrides the compose invocation, e.g. ["docker-compose"]
	// for hosts still on the legacy binary.
	Command []string `hcl:"command,optional"`

	// Env is extra environment for compose commands, used for variable
	// substitution in the compose file.
	Env map[string]string `hcl:"env,optional"`
}

// TestConfig describes the test command run against the group.
type TestConfig struct {
	// Command is the test invocation. Defaults to running go test over
	// the home checkout with a coverprofile in the coverage directory.
	Command []string `hcl:"command,optional"`

	// Dir is the working directory for the command. Defaults to the
	// home directory.
	Dir string `hcl:"dir,optional"`

	// Env is extra environment for the test command.
	Env map[string]string `hcl:"env,optional"`

	// Timeout bounds the whole suite, as a duration string. Empty means
	// unbounded.
	Timeout string `hcl:"timeout,optional"`
}

// CoverageConfig describes where instrumented runs accumulate profiles
// and where the merged result goes.
type CoverageConfig struct {
	// Dir is scanned for profiles after teardown. Defaults to coverage/
	// under the home directory.
	Dir string `hcl:"dir,optional"`

	// Pattern is the glob matched within Dir.
	Pattern string `hcl:"pattern,optional"`

	// Out is the path for the combined profile. It defaults to a
	// subdirectory of Dir that the scan pattern does not reach, so a
	// later run does not ingest the merged output as an input.
	Out string `hcl:"out,optional"`

	// Disabled turns coverage merging and reporting off.
	Disabled bool `hcl:"disabled,optional"`
}

// FixturesConfig describes alert fixtures seeded before the tests run.
// The block is optional; without it nothing is seeded.
type FixturesConfig struct {
	// Dir holds Avro alert containers. Defaults to tests/data under the
	// home directory.
	Dir string `hcl:"dir,optional"`

	// Pattern is the glob matched within Dir.
	Pattern string `hcl:"pattern,optional"`

	// Brokers receive the fixtures. Defaults to the resolved alert
	// brokers.
	Brokers []string `hcl:"brokers,optional"`

	// Topic forces every fixture onto one topic instead of deriving the
	// topic per alert.
	Topic string `hcl:"topic,optional"`

	// TopicField is the alert field the per-alert topic is derived from.
	TopicField string `hcl:"topic_field,optional"`
}

// ProbeConfig is one labelled readiness probe.
type ProbeConfig struct {
	Name string `hcl:"name,label"`

	// Type selects the probe: tcp, http or kafka.
	Type string `hcl:"type"`

	// Addr is the dial target for tcp probes.
	Addr string `hcl:"addr,optional"`

	// URL is the target for http probes.
	URL string `hcl:"url,optional"`

	// Brokers are the seed brokers for kafka probes.
	Brokers []string `hcl:"brokers,optional"`

	// Topic, for kafka probes, must additionally exist and resolve.
	Topic string `hcl:"topic,optional"`
}

// TimeoutsConfig holds phase timeouts as duration strings.
type TimeoutsConfig struct {
	Start    string `hcl:"start,optional"`
	Ready    string `hcl:"ready,optional"`
	Stop     string `hcl:"stop,optional"`
	Teardown string `hcl:"teardown,optional"`
}

// FromFile loads configuration from an HCL file, applies defaults and
// validates the result.
func FromFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds the zero-config mode: compose file, test command,
// fixtures and coverage paths all derive from the FINK_CLIENT_HOME
// checkout. The home check runs first so a misconfigured environment
// fails before anything touches Docker.
func FromEnv() (*Config, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		return nil, ErrHomeUnset
	}

	cfg := Config{Home: home}
	if fi, err := os.Stat(filepath.Join(home, defaultFixturesDir)); err == nil && fi.IsDir() {
		cfg.Fixtures = &FixturesConfig{}
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize fills defaults and resolves derived values after decoding.
func (c *Config) finalize() error {
	if c.Project == "" {
		c.Project = DefaultProject
	}

	if c.Home != "" {
		abs, err := filepath.Abs(c.Home)
		if err != nil {
			return fmt.Errorf("resolving home directory %s: %w", c.Home, err)
		}
		c.Home = abs
	}

	if c.Compose == nil {
		c.Compose = &ComposeConfig{}
	}
	if c.Compose.File == "" {
		if c.Home == "" {
			return fmt.Errorf("compose file is required when no home directory is set")
		}
		c.Compose.File = filepath.Join(c.Home, defaultComposeFile)
	}

	if c.Coverage == nil {
		c.Coverage = &CoverageConfig{}
	}
	if !c.Coverage.Disabled && c.Coverage.Dir == "" {
		if c.Home == "" {
			// Nothing to scan without a derivable directory.
			c.Coverage.Disabled = true
		} else {
			c.Coverage.Dir = filepath.Join(c.Home, defaultCoverageDir)
		}
	}
	if !c.Coverage.Disabled {
		if c.Coverage.Pattern == "" {
			c.Coverage.Pattern = coverage.DefaultPattern
		}
		if c.Coverage.Out == "" {
			c.Coverage.Out = filepath.Join(c.Coverage.Dir, "merged", "combined.cov")
		}
	}

	if c.Test == nil {
		c.Test = &TestConfig{}
	}
	if len(c.Test.Command) == 0 {
		if c.Home == "" {
			return fmt.Errorf("test command is required when no home directory is set")
		}
		c.Test.Command = defaultTestCommand(c.Coverage)
	}
	if c.Test.Dir == "" {
		c.Test.Dir = c.Home
	}

	if c.Fixtures != nil {
		if c.Fixtures.Dir == "" {
			if c.Home == "" {
				return fmt.Errorf("fixtures directory is required when no home directory is set")
			}
			c.Fixtures.Dir = filepath.Join(c.Home, defaultFixturesDir)
		}
		if c.Fixtures.Pattern == "" {
			c.Fixtures.Pattern = seed.DefaultPattern
		}
		if c.Fixtures.TopicField == "" {
			c.Fixtures.TopicField = seed.DefaultTopicField
		}
		if len(c.Fixtures.Brokers) == 0 {
			c.Fixtures.Brokers = alert.ResolveBrokers(nil)
		}
	}

	if len(c.Probes) == 0 {
		c.Probes = []ProbeConfig{{
			Name:    "kafka",
			Type:    ProbeKafka,
			Brokers: alert.ResolveBrokers(nil),
		}}
	}

	if c.Timeouts == nil {
		c.Timeouts = &TimeoutsConfig{}
	}
	var err error
	if c.StartTimeout, err = parseTimeout("start", c.Timeouts.Start, defaultStartTimeout); err != nil {
		return err
	}
	if c.ReadyTimeout, err = parseTimeout("ready", c.Timeouts.Ready, defaultReadyTimeout); err != nil {
		return err
	}
	if c.StopTimeout, err = parseTimeout("stop", c.Timeouts.Stop, defaultStopTimeout); err != nil {
		return err
	}
	if c.TeardownTimeout, err = parseTimeout("teardown", c.Timeouts.Teardown, defaultTeardownTimeout); err != nil {
		return err
	}
	if c.TestTimeout, err = parseTimeout("test", c.Test.Timeout, 0); err != nil {
		return err
	}

	return nil
}

// defaultTestCommand is the zero-config suite: go test over the home
// checkout, dropping a coverprofile where the reporter will find it.
func defaultTestCommand(cov *CoverageConfig) []string {
	cmd := []string{"go", "test", "-count=1"}
	if !cov.Disabled {
		cmd = append(cmd, "-coverprofile="+filepath.Join(cov.Dir, "integration.cov"))
	}
	return append(cmd, "./...")
}

func parseTimeout(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s timeout %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s timeout must be positive, got %q", name, value)
	}
	return d, nil
}

// Validate checks the finalized configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Project,
			validation.Required,
			validation.Match(projectNameRe).
				Error("must be lowercase letters, digits, dashes or underscores"),
		),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(c.Compose,
		validation.Field(&c.Compose.File, validation.Required),
	); err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	if err := validation.ValidateStruct(c.Test,
		validation.Field(&c.Test.Command, validation.Required),
	); err != nil {
		return fmt.Errorf("test: %w", err)
	}

	if !c.Coverage.Disabled {
		if err := validation.ValidateStruct(c.Coverage,
			validation.Field(&c.Coverage.Dir, validation.Required),
			validation.Field(&c.Coverage.Pattern, validation.Required),
		); err != nil {
			return fmt.Errorf("coverage: %w", err)
		}
	}

	if c.Fixtures != nil {
		if err := validation.ValidateStruct(c.Fixtures,
			validation.Field(&c.Fixtures.Dir, validation.Required),
			validation.Field(&c.Fixtures.Brokers, validation.Required),
		); err != nil {
			return fmt.Errorf("fixtures: %w", err)
		}
	}

	for i := range c.Probes {
		if err := c.Probes[i].Validate(); err != nil {
			return fmt.Errorf("probe %q: %w", c.Probes[i].Name, err)
		}
	}

	return nil
}

// Validate checks one probe block against its type's requirements.
func (p *ProbeConfig) Validate() error {
	if err := validation.ValidateStruct(p,
		validation.Field(&p.Type,
			validation.Required,
			validation.In(ProbeTCP, ProbeHTTP, ProbeKafka).
				Error("must be tcp, http or kafka"),
		),
	); err != nil {
		return err
	}

	switch p.Type {
	case ProbeTCP:
		return validation.ValidateStruct(p, validation.Field(&p.Addr, validation.Required))
	case ProbeHTTP:
		return validation.ValidateStruct(p, validation.Field(&p.URL, validation.Required))
	case ProbeKafka:
		return validation.ValidateStruct(p, validation.Field(&p.Brokers, validation.Required))
	}
	return nil
}

// Probers converts the probe blocks into live readiness probes.
func (c *Config) Probers() []probe.Prober {
	probers := make([]probe.Prober, 0, len(c.Probes))
	for _, pc := range c.Probes {
		switch pc.Type {
		case ProbeTCP:
			probers = append(probers, probe.TCP{Addr: pc.Addr})
		case ProbeHTTP:
			probers = append(probers, probe.HTTP{URL: pc.URL})
		case ProbeKafka:
			probers = append(probers, probe.Kafka{Brokers: pc.Brokers, Topic: pc.Topic})
		}
	}
	return probers
}

// Example configuration file format:
//
// project = "fink-int-test"
// home    = "/home/fink/fink-client"
//
// compose {
//   file = "/home/fink/fink-client/tests/docker-compose-kafka.yml"
//   env = {
//     KAFKA_VERSION = "3.7"
//   }
// }
//
// test {
//   command = ["go", "test", "-count=1", "-coverprofile=/tmp/fink-cov/integration.cov", "./..."]
//   dir     = "/home/fink/fink-client"
//   timeout = "20m"
// }
//
// coverage {
//   dir     = "/tmp/fink-cov"
//   pattern = "*.cov"
//   out     = "/tmp/fink-cov/merged/combined.cov"
// }
//
// probe "kafka" {
//   type    = "kafka"
//   brokers = ["localhost:9093", "localhost:9094", "localhost:9095"]
// }
//
// fixtures {
//   dir         = "/home/fink/fink-client/tests/data"
//   topic_field = "cross_match_alerts_per_batch"
// }
//
// timeouts {
//   start = "5m"
//   ready = "2m"
//   stop  = "30s"
// }
