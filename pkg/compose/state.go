package compose

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/hashicorp/go-hclog"
)

// Labels compose stamps on every container it creates. They are the only
// bookkeeping the harness relies on: state queries see any group under the
// project name, including ones started by earlier runs.
const (
	labelProject = "com.docker.compose.project"
	labelService = "com.docker.compose.service"
)

// ContainerState is one project container as reported by the engine.
type ContainerState struct {
	ID      string
	Name    string
	Service string
	State   string // running, exited, created, ...
	Health  string // healthy, unhealthy, starting, or "" without a healthcheck
}

// Running reports whether the container's main process is up.
func (c ContainerState) Running() bool {
	return c.State == "running"
}

// Inspector reports the engine-side state of compose projects.
type Inspector struct {
	cli    *client.Client
	logger hclog.Logger
}

// NewInspector connects to the Docker engine. DOCKER_HOST and related
// environment variables are honored; the API version is negotiated so the
// same binary works against older daemons.
func NewInspector(logger hclog.Logger) (*Inspector, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &Inspector{
		cli:    cli,
		logger: logger.Named("inspect"),
	}, nil
}

// Close releases the engine connection.
func (i *Inspector) Close() error {
	return i.cli.Close()
}

// Containers returns every container labelled with the project name,
// including stopped ones, sorted by service then name.
func (i *Inspector) Containers(ctx context.Context, project string) ([]ContainerState, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", labelProject+"="+project),
	)

	list, err := i.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers for project %q: %w", project, err)
	}

	states := make([]ContainerState, 0, len(list))
	for _, c := range list {
		states = append(states, i.containerState(ctx, c))
	}
	sort.Slice(states, func(a, b int) bool {
		if states[a].Service != states[b].Service {
			return states[a].Service < states[b].Service
		}
		return states[a].Name < states[b].Name
	})

	return states, nil
}

func (i *Inspector) containerState(ctx context.Context, c types.Container) ContainerState {
	// The engine returns names with a leading slash.
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	state := ContainerState{
		ID:      c.ID,
		Name:    name,
		Service: c.Labels[labelService],
		State:   c.State,
	}

	// Health status is only available through inspect. A failed inspect
	// degrades to "no health info" rather than failing the whole listing.
	insp, err := i.cli.ContainerInspect(ctx, c.ID)
	if err != nil {
		i.logger.Debug("container inspect failed", "id", c.ID, "error", err)
		return state
	}
	if insp.State != nil && insp.State.Health != nil {
		state.Health = insp.State.Health.Status
	}

	return state
}

// AllRunning reports whether every named service has at least one running
// container under the project.
func (i *Inspector) AllRunning(ctx context.Context, project string, services []string) (bool, error) {
	states, err := i.Containers(ctx, project)
	if err != nil {
		return false, err
	}
	return allRunning(states, services), nil
}

// ServiceHealth returns the engine-reported health of the named service's
// container, or "" when the service has no healthcheck.
func (i *Inspector) ServiceHealth(ctx context.Context, project, service string) (string, error) {
	states, err := i.Containers(ctx, project)
	if err != nil {
		return "", err
	}
	for _, s := range states {
		if s.Service == service {
			return s.Health, nil
		}
	}
	return "", fmt.Errorf("service %q has no container in project %q", service, project)
}

// allRunning is the pure check behind AllRunning.
func allRunning(states []ContainerState, services []string) bool {
	if len(services) == 0 {
		return len(states) > 0 && everyRunning(states)
	}
	for _, svc := range services {
		found := false
		for _, s := range states {
			if s.Service == svc && s.Running() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func everyRunning(states []ContainerState) bool {
	for _, s := range states {
		if !s.Running() {
			return false
		}
	}
	return true
}
