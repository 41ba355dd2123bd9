package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllRunning(t *testing.T) {
	running := func(svc string) ContainerState {
		return ContainerState{Service: svc, State: "running"}
	}
	exited := func(svc string) ContainerState {
		return ContainerState{Service: svc, State: "exited"}
	}

	tests := []struct {
		name     string
		states   []ContainerState
		services []string
		want     bool
	}{
		{
			name:     "all services running",
			states:   []ContainerState{running("zookeeper"), running("kafka1")},
			services: []string{"kafka1", "zookeeper"},
			want:     true,
		},
		{
			name:     "one service exited",
			states:   []ContainerState{running("zookeeper"), exited("kafka1")},
			services: []string{"kafka1", "zookeeper"},
			want:     false,
		},
		{
			name:     "service missing entirely",
			states:   []ContainerState{running("zookeeper")},
			services: []string{"kafka1", "zookeeper"},
			want:     false,
		},
		{
			name:     "no wanted services falls back to any-group check",
			states:   []ContainerState{running("kafka1")},
			services: nil,
			want:     true,
		},
		{
			name:     "no wanted services and a stopped container",
			states:   []ContainerState{running("kafka1"), exited("zookeeper")},
			services: nil,
			want:     false,
		},
		{
			name:     "empty group",
			states:   nil,
			services: nil,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, allRunning(tt.states, tt.services))
		})
	}
}

func TestContainerStateRunning(t *testing.T) {
	assert.True(t, ContainerState{State: "running"}.Running())
	assert.False(t, ContainerState{State: "exited"}.Running())
	assert.False(t, ContainerState{}.Running())
}
