package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cAbhi15/fink-client/pkg/compose"
	"github.com/cAbhi15/fink-client/pkg/coverage"
	"github.com/cAbhi15/fink-client/pkg/probe"
	"github.com/cAbhi15/fink-client/pkg/seed"
)

// eventLog records phase invocations so tests can assert ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(e string) int {
	n := 0
	for _, got := range l.list() {
		if got == e {
			n++
		}
	}
	return n
}

type fakeCompose struct {
	log     *eventLog
	upErr   error
	downErr error
}

func (f *fakeCompose) Name() string { return "fink-int-test" }

func (f *fakeCompose) Up(ctx context.Context) error {
	f.log.add("up")
	return f.upErr
}

func (f *fakeCompose) Down(ctx context.Context) error {
	f.log.add("down")
	return f.downErr
}

type fakeInspector struct {
	log        *eventLog
	running    bool
	runningErr error
	leftovers  []compose.ContainerState
	leftErr    error
}

func (f *fakeInspector) AllRunning(ctx context.Context, project string, services []string) (bool, error) {
	f.log.add("inspect")
	return f.running, f.runningErr
}

func (f *fakeInspector) Containers(ctx context.Context, project string) ([]compose.ContainerState, error) {
	f.log.add("leftovers")
	return f.leftovers, f.leftErr
}

type fakeSeeder struct {
	log *eventLog
	err error
}

func (f *fakeSeeder) Publish(ctx context.Context) (*seed.Report, error) {
	f.log.add("seed")
	if f.err != nil {
		return nil, f.err
	}
	return &seed.Report{Published: 2, Topics: []string{"ebwuma", "rrlyr"}}, nil
}

type fakeRunner struct {
	log    *eventLog
	result *TestResult
	err    error
}

func (f *fakeRunner) Run(ctx context.Context) (*TestResult, error) {
	f.log.add("test")
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeReporter struct {
	log      *eventLog
	mergeErr error
}

func (f *fakeReporter) Merge() (*coverage.Summary, error) {
	f.log.add("merge")
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	return &coverage.Summary{Statements: 10, Missed: 2}, nil
}

func (f *fakeReporter) Print(w io.Writer, s *coverage.Summary) {
	f.log.add("print")
	fmt.Fprintf(w, "TOTAL %.1f%%\n", s.Percent())
}

// fixture bundles a fully faked harness whose collaborators tests can
// break one at a time.
type fixture struct {
	log       *eventLog
	compose   *fakeCompose
	inspector *fakeInspector
	seeder    *fakeSeeder
	runner    *fakeRunner
	reporter  *fakeReporter
	report    *bytes.Buffer
	probeFn   func(ctx context.Context) error
}

func newFixture() *fixture {
	log := &eventLog{}
	return &fixture{
		log:       log,
		compose:   &fakeCompose{log: log},
		inspector: &fakeInspector{log: log},
		seeder:    &fakeSeeder{log: log},
		runner:    &fakeRunner{log: log, result: &TestResult{ExitCode: 0, Duration: time.Second}},
		reporter:  &fakeReporter{log: log},
		report:    &bytes.Buffer{},
		probeFn:   func(ctx context.Context) error { return nil },
	}
}

func (f *fixture) harness(t *testing.T) *Harness {
	t.Helper()

	h, err := New(Config{
		Compose:   f.compose,
		Services:  []string{"zookeeper", "kafka1"},
		Inspector: f.inspector,
		Probes: []probe.Prober{probe.Func{
			ProbeName: "kafka",
			Fn: func(ctx context.Context) error {
				f.log.add("probe")
				return f.probeFn(ctx)
			},
		}},
		ReadyTimeout: 500 * time.Millisecond,
		Seeder:       f.seeder,
		Runner:       f.runner,
		Coverage:     f.reporter,
		ReportTo:     f.report,
	})
	require.NoError(t, err)
	return h
}

func TestNewValidation(t *testing.T) {
	f := newFixture()

	_, err := New(Config{Runner: f.runner})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compose project is required")

	_, err = New(Config{Compose: f.compose})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test runner is required")
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture()
	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusPassed, res.Status)
	assert.Equal(t, 0, res.ExitCode())
	assert.Equal(t, 0, res.TestExitCode)
	assert.Empty(t, res.Reason)
	assert.Nil(t, res.TeardownErr)
	require.NotNil(t, res.Coverage)

	// Full pipeline in order, report strictly after teardown.
	assert.Equal(t, []string{
		"inspect", "up", "probe", "seed", "test",
		"down", "leftovers", "merge", "print",
	}, f.log.list())
	assert.Contains(t, f.report.String(), "TOTAL")
}

func TestRunStartFailureStillTearsDownOnce(t *testing.T) {
	f := newFixture()
	f.compose.upErr = errors.New("no such service")

	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusInfraError, res.Status)
	assert.Equal(t, 2, res.ExitCode())
	assert.Contains(t, res.Reason, "starting dependency group")
	assert.Equal(t, -1, res.TestExitCode)
	assert.Equal(t, 1, f.log.count("down"))
	assert.Equal(t, 0, f.log.count("test"))
}

func TestRunTestFailureStillTearsDown(t *testing.T) {
	f := newFixture()
	f.runner.result = &TestResult{ExitCode: 1, Duration: time.Second}

	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, res.ExitCode())
	assert.Contains(t, res.Reason, "exited with code 1")
	assert.Equal(t, 1, res.TestExitCode)
	assert.Equal(t, 1, f.log.count("down"))
}

func TestRunTestStartErrorIsInfrastructure(t *testing.T) {
	f := newFixture()
	f.runner.err = errors.New("exec: not found")

	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusInfraError, res.Status)
	assert.Contains(t, res.Reason, "running test command")
	assert.Equal(t, -1, res.TestExitCode)
	assert.Equal(t, 1, f.log.count("down"))
}

func TestRunTimedOutSuiteFails(t *testing.T) {
	f := newFixture()
	f.runner.result = &TestResult{ExitCode: -1, Duration: 2 * time.Second, TimedOut: true}

	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "exceeded its timeout")
}

func TestRunReadinessFailure(t *testing.T) {
	f := newFixture()
	f.probeFn = func(ctx context.Context) error { return errors.New("metadata request refused") }

	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusInfraError, res.Status)
	assert.Contains(t, res.Reason, "waiting for dependency group")
	assert.Equal(t, 0, f.log.count("test"))
	assert.Equal(t, 1, f.log.count("down"))
}

func TestRunSeedFailure(t *testing.T) {
	f := newFixture()
	f.seeder.err = errors.New("no alert fixtures matching *.avro")

	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusInfraError, res.Status)
	assert.Contains(t, res.Reason, "seeding alert fixtures")
	assert.Equal(t, 0, f.log.count("test"))
	assert.Equal(t, 1, f.log.count("down"))
}

func TestRunAlreadyRunningSkipsUp(t *testing.T) {
	f := newFixture()
	f.inspector.running = true

	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusPassed, res.Status)
	assert.Equal(t, 0, f.log.count("up"))
	assert.Equal(t, 1, f.log.count("probe"))
	assert.Equal(t, 1, f.log.count("test"))
	assert.Equal(t, 1, f.log.count("down"))
}

func TestRunInspectionErrorFallsBackToUp(t *testing.T) {
	f := newFixture()
	f.inspector.runningErr = errors.New("cannot connect to the docker daemon")

	res := f.harness(t).Run(context.Background())

	assert.Equal(t, StatusPassed, res.Status)
	assert.Equal(t, 1, f.log.count("up"))
}

func TestRunTeardownErrorNeverMasksOutcome(t *testing.T) {
	t.Run("passed run stays passed", func(t *testing.T) {
		f := newFixture()
		f.compose.downErr = errors.New("network in use")

		res := f.harness(t).Run(context.Background())

		assert.Equal(t, StatusPassed, res.Status)
		assert.Equal(t, 0, res.ExitCode())
		require.Error(t, res.TeardownErr)
		assert.Contains(t, res.TeardownErr.Error(), "network in use")
	})

	t.Run("leftover containers are recorded", func(t *testing.T) {
		f := newFixture()
		f.inspector.leftovers = []compose.ContainerState{{Name: "fink-int-test-kafka1-1", State: "running"}}

		res := f.harness(t).Run(context.Background())

		assert.Equal(t, StatusPassed, res.Status)
		require.Error(t, res.TeardownErr)
		assert.Contains(t, res.TeardownErr.Error(), "fink-int-test-kafka1-1")
	})

	t.Run("failed run keeps its verdict", func(t *testing.T) {
		f := newFixture()
		f.runner.result = &TestResult{ExitCode: 5}
		f.compose.downErr = errors.New("compose down failed")

		res := f.harness(t).Run(context.Background())

		assert.Equal(t, StatusFailed, res.Status)
		assert.Contains(t, res.Reason, "exited with code 5")
		require.Error(t, res.TeardownErr)
	})
}

func TestRunReportError(t *testing.T) {
	t.Run("downgrades a passed run only", func(t *testing.T) {
		f := newFixture()
		f.reporter.mergeErr = errors.New("no coverage data found")

		res := f.harness(t).Run(context.Background())

		assert.Equal(t, StatusReportError, res.Status)
		assert.Equal(t, 3, res.ExitCode())
		assert.Contains(t, res.Reason, "merging coverage data")
		assert.Nil(t, res.Coverage)
	})

	t.Run("never overrides a test failure", func(t *testing.T) {
		f := newFixture()
		f.runner.result = &TestResult{ExitCode: 1}
		f.reporter.mergeErr = errors.New("no coverage data found")

		res := f.harness(t).Run(context.Background())

		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, 1, res.ExitCode())
		assert.Contains(t, res.Reason, "exited with code 1")
	})

	t.Run("never overrides an infrastructure error", func(t *testing.T) {
		f := newFixture()
		f.compose.upErr = errors.New("no such service")
		f.reporter.mergeErr = errors.New("no coverage data found")

		res := f.harness(t).Run(context.Background())

		assert.Equal(t, StatusInfraError, res.Status)
		assert.Equal(t, 2, res.ExitCode())
	})
}

func TestRunWithoutOptionalComponents(t *testing.T) {
	f := newFixture()

	h, err := New(Config{
		Compose:  f.compose,
		Runner:   f.runner,
		ReportTo: f.report,
	})
	require.NoError(t, err)

	res := h.Run(context.Background())

	assert.Equal(t, StatusPassed, res.Status)
	assert.Nil(t, res.Coverage)
	assert.Equal(t, []string{"up", "test", "down"}, f.log.list())
}

func TestRunCancelledContextStillTearsDown(t *testing.T) {
	f := newFixture()
	f.probeFn = func(ctx context.Context) error { return errors.New("not ready") }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.harness(t).Run(ctx)

	assert.Equal(t, StatusInfraError, res.Status)
	assert.Equal(t, 1, f.log.count("down"))
}

func TestRunSequentialRunsShareNoState(t *testing.T) {
	f := newFixture()
	h := f.harness(t)

	first := h.Run(context.Background())
	second := h.Run(context.Background())

	assert.Equal(t, StatusPassed, first.Status)
	assert.Equal(t, StatusPassed, second.Status)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 2, f.log.count("down"))
}
