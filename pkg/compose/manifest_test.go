package compose

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const kafkaComposeYAML = `version: "3"
services:
  zookeeper:
    image: confluentinc/cp-zookeeper:5.2.1
    container_name: zookeeper
    ports:
      - "2181:2181"
  kafka1:
    image: confluentinc/cp-kafka:5.2.1
    container_name: kafka1
    ports:
      - "9093:9093"
    healthcheck:
      test: ["CMD", "nc", "-z", "localhost", "9093"]
      interval: 5s
  kafka2:
    image: confluentinc/cp-kafka:5.2.1
    ports:
      - target: 9092
        published: 9094
        protocol: tcp
  kafka3:
    image: confluentinc/cp-kafka:5.2.1
    ports:
      - "127.0.0.1:9095:9092/tcp"
`

func loadTestManifest(t *testing.T) *Manifest {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs,
		"/fink/tests/docker-compose-kafka.yml", []byte(kafkaComposeYAML), 0o644))

	m, err := LoadManifest(fs, "/fink/tests/docker-compose-kafka.yml")
	require.NoError(t, err)
	return m
}

func TestLoadManifest(t *testing.T) {
	m := loadTestManifest(t)

	assert.Equal(t,
		[]string{"kafka1", "kafka2", "kafka3", "zookeeper"},
		m.ServiceNames())

	kafka1 := m.Services["kafka1"]
	assert.Equal(t, "confluentinc/cp-kafka:5.2.1", kafka1.Image)
	assert.Equal(t, "kafka1", kafka1.ContainerName)
	assert.True(t, kafka1.HasHealthcheck())

	assert.False(t, m.Services["zookeeper"].HasHealthcheck())
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(afero.NewMemMapFs(), "/nope.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading compose file")
}

func TestLoadManifestNoServices(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/empty.yml", []byte("version: \"3\"\n"), 0o644))

	_, err := LoadManifest(fs, "/empty.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no services")
}

func TestPortUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Port
	}{
		{
			name: "host and container",
			yaml: `"9093:9093"`,
			want: Port{Published: 9093, Target: 9093},
		},
		{
			name: "container only",
			yaml: `"9092"`,
			want: Port{Target: 9092},
		},
		{
			name: "host ip prefix with protocol",
			yaml: `"127.0.0.1:9095:9092/tcp"`,
			want: Port{HostIP: "127.0.0.1", Published: 9095, Target: 9092, Protocol: "tcp"},
		},
		{
			name: "range takes the low end",
			yaml: `"9093-9095:9093-9095"`,
			want: Port{Published: 9093, Target: 9093},
		},
		{
			name: "long form",
			yaml: "target: 9092\npublished: 9094\nprotocol: tcp",
			want: Port{Published: 9094, Target: 9092, Protocol: "tcp"},
		},
		{
			name: "long form string published",
			yaml: "target: 9092\npublished: \"9094\"",
			want: Port{Published: 9094, Target: 9092},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Port
			require.NoError(t, yaml.Unmarshal([]byte(tt.yaml), &p))
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestPortUnmarshalYAMLInvalid(t *testing.T) {
	var p Port
	err := yaml.Unmarshal([]byte(`"not:a:port:at:all"`), &p)
	require.Error(t, err)
}

func TestPublishedAddrs(t *testing.T) {
	m := loadTestManifest(t)

	assert.Equal(t, []string{"localhost:9093"},
		m.Services["kafka1"].PublishedAddrs())
	assert.Equal(t, []string{"localhost:9094"},
		m.Services["kafka2"].PublishedAddrs())
	assert.Equal(t, []string{"127.0.0.1:9095"},
		m.Services["kafka3"].PublishedAddrs())

	// An unpublished port yields no address.
	unpublished := Service{Ports: []Port{{Target: 9092}}}
	assert.Empty(t, unpublished.PublishedAddrs())
}
