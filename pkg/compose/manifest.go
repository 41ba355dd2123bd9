package compose

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Manifest is the minimal view of a compose file the harness needs to plan
// readiness checks: which services exist, where they publish ports, and
// whether the container reports its own health.
type Manifest struct {
	Services map[string]Service `yaml:"services"`
}

// Service is one compose service definition.
type Service struct {
	Image         string       `yaml:"image"`
	ContainerName string       `yaml:"container_name"`
	Ports         []Port       `yaml:"ports"`
	Healthcheck   *Healthcheck `yaml:"healthcheck"`
}

// Healthcheck marks a service-level healthcheck. Only its presence matters
// here; the check command itself is the runtime's business.
type Healthcheck struct {
	Disable bool `yaml:"disable"`
}

// HasHealthcheck reports whether the service defines an active healthcheck,
// meaning the engine will publish a health status for its container.
func (s Service) HasHealthcheck() bool {
	return s.Healthcheck != nil && !s.Healthcheck.Disable
}

// PublishedAddrs returns a dialable host address for every published port
// of the service. Ports without a host binding are skipped.
func (s Service) PublishedAddrs() []string {
	var addrs []string
	for _, p := range s.Ports {
		if p.Published == 0 {
			continue
		}
		host := p.HostIP
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		addrs = append(addrs, fmt.Sprintf("%s:%d", host, p.Published))
	}
	return addrs
}

// Port is one port mapping. Compose accepts both the short string form
// ("9093:9093", "127.0.0.1:9093:9093/tcp") and the long mapping form with
// target/published keys; both decode into this struct.
type Port struct {
	HostIP    string
	Published int
	Target    int
	Protocol  string
}

// UnmarshalYAML implements yaml.Unmarshaler for both port syntaxes.
func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return p.parseShort(value.Value)

	case yaml.MappingNode:
		var long struct {
			HostIP    string      `yaml:"host_ip"`
			Published interface{} `yaml:"published"`
			Target    int         `yaml:"target"`
			Protocol  string      `yaml:"protocol"`
		}
		if err := value.Decode(&long); err != nil {
			return fmt.Errorf("invalid port mapping: %w", err)
		}
		published, err := portNumber(long.Published)
		if err != nil {
			return err
		}
		p.HostIP = long.HostIP
		p.Published = published
		p.Target = long.Target
		p.Protocol = long.Protocol
		return nil

	default:
		return fmt.Errorf("invalid port entry")
	}
}

// parseShort parses the short syntax: [HOST_IP:]([HOST_PORT]:)CONTAINER_PORT[/PROTOCOL].
func (p *Port) parseShort(s string) error {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		p.Protocol = s[i+1:]
		s = s[:i]
	}

	parts := strings.Split(s, ":")
	var err error
	switch len(parts) {
	case 1:
		// Container port only, host port assigned by the engine.
		p.Target, err = firstPort(parts[0])
	case 2:
		if p.Published, err = firstPort(parts[0]); err != nil {
			return fmt.Errorf("invalid port %q: %w", s, err)
		}
		p.Target, err = firstPort(parts[1])
	case 3:
		p.HostIP = parts[0]
		if p.Published, err = firstPort(parts[1]); err != nil {
			return fmt.Errorf("invalid port %q: %w", s, err)
		}
		p.Target, err = firstPort(parts[2])
	default:
		return fmt.Errorf("invalid port %q", s)
	}
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", s, err)
	}
	return nil
}

// firstPort parses a port, taking the low end of a range like "9093-9095".
func firstPort(s string) (int, error) {
	if i := strings.IndexByte(s, '-'); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func portNumber(v interface{}) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return t, nil
	case string:
		return firstPort(t)
	default:
		return 0, fmt.Errorf("invalid published port %v", v)
	}
}

// LoadManifest reads and parses a compose file.
func LoadManifest(fs afero.Fs, path string) (*Manifest, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading compose file: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parsing compose file %s: %w", path, err)
	}
	if len(m.Services) == 0 {
		return nil, fmt.Errorf("compose file %s defines no services", path)
	}

	return &m, nil
}

// ServiceNames returns the manifest's service names, sorted.
func (m *Manifest) ServiceNames() []string {
	names := make([]string, 0, len(m.Services))
	for name := range m.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
