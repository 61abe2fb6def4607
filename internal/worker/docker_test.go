package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeRunner scripts docker CLI responses per subcommand and records the
// argument lists it saw.
type fakeRunner struct {
	calls     [][]string
	responses map[string]commandResult
}

func (f *fakeRunner) run(_ context.Context, args ...string) commandResult {
	f.calls = append(f.calls, args)
	if res, ok := f.responses[args[0]]; ok {
		return res
	}
	return commandResult{}
}

func newTestDriver(runner *fakeRunner) *DockerDriver {
	d := NewDockerDriver(DockerOptions{
		Image:        "autonops/infraiq-demo:latest",
		StartTimeout: 5 * time.Second,
	})
	d.run = runner.run
	return d
}

func TestStartRunsContainerAndWaits(t *testing.T) {
	runner := &fakeRunner{responses: map[string]commandResult{
		"run":     {Stdout: "abc123def456\n"},
		"inspect": {Stdout: "true\n"},
	}}
	d := newTestDriver(runner)

	ref, err := d.Start(context.Background(), "sess_01JXAMPLEULID", 7701)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ref != "abc123def456" {
		t.Errorf("expected trimmed container id, got %q", ref)
	}

	runArgs := runner.calls[0]
	joined := strings.Join(runArgs, " ")
	for _, want := range []string{
		"--name demo-01JXAMPL",
		"-p 7701:7681",
		"--memory 512m",
		"--cpus 0.5",
		"-e SESSION_ID=sess_01JXAMPLEULID",
		"autonops/infraiq-demo:latest",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("docker run args missing %q: %v", want, runArgs)
		}
	}
}

func TestStartFailureWrapsSentinelAndCleansUp(t *testing.T) {
	runner := &fakeRunner{responses: map[string]commandResult{
		"run": {ExitCode: 125, Stderr: "port is already allocated"},
	}}
	d := newTestDriver(runner)

	_, err := d.Start(context.Background(), "sess_x", 7700)
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("expected ErrStartFailed, got %v", err)
	}

	var removed bool
	for _, call := range runner.calls {
		if call[0] == "rm" {
			removed = true
		}
	}
	if !removed {
		t.Error("failed start did not remove the container")
	}
}

func TestStartFailsFastWhenContainerExits(t *testing.T) {
	runner := &fakeRunner{responses: map[string]commandResult{
		"run":     {Stdout: "abc123\n"},
		"inspect": {ExitCode: 1, Stderr: "Error: No such container: abc123"},
	}}
	d := NewDockerDriver(DockerOptions{Image: "img", StartTimeout: 30 * time.Second})
	d.run = runner.run

	start := time.Now()
	_, err := d.Start(context.Background(), "sess_x", 7700)
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("expected ErrStartFailed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("exited container not detected early, took %v", elapsed)
	}

	// One inspect is enough; no polling loop for a container that is gone.
	inspects := 0
	for _, call := range runner.calls {
		if call[0] == "inspect" {
			inspects++
		}
	}
	if inspects != 1 {
		t.Errorf("expected a single inspect, got %d", inspects)
	}
}

func TestStartTimesOutWaitingForRunning(t *testing.T) {
	runner := &fakeRunner{responses: map[string]commandResult{
		"run":     {Stdout: "abc123\n"},
		"inspect": {Stdout: "false\n"},
	}}
	d := NewDockerDriver(DockerOptions{Image: "img", StartTimeout: 300 * time.Millisecond})
	d.run = runner.run

	_, err := d.Start(context.Background(), "sess_x", 7700)
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("expected ErrStartFailed on timeout, got %v", err)
	}
}

func TestAlive(t *testing.T) {
	for _, tc := range []struct {
		name string
		res  commandResult
		want bool
	}{
		{"running", commandResult{Stdout: "true\n"}, true},
		{"stopped", commandResult{Stdout: "false\n"}, false},
		{"gone", commandResult{ExitCode: 1, Stderr: "Error: No such container: abc"}, false},
		{"cli error", commandResult{Err: fmt.Errorf("docker not found")}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{responses: map[string]commandResult{"inspect": tc.res}}
			d := newTestDriver(runner)
			if got := d.Alive(context.Background(), "abc"); got != tc.want {
				t.Errorf("Alive = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStopToleratesMissingContainer(t *testing.T) {
	runner := &fakeRunner{responses: map[string]commandResult{
		"stop": {ExitCode: 1, Stderr: "Error response from daemon: No such container: abc"},
	}}
	d := newTestDriver(runner)

	if err := d.Stop(context.Background(), "abc"); err != nil {
		t.Fatalf("stop of missing container must succeed, got %v", err)
	}
}

func TestStopReportsRealFailures(t *testing.T) {
	runner := &fakeRunner{responses: map[string]commandResult{
		"stop": {ExitCode: 1, Stderr: "cannot connect to the docker daemon"},
	}}
	d := newTestDriver(runner)

	if err := d.Stop(context.Background(), "abc"); err == nil {
		t.Fatal("expected error when the daemon is unreachable")
	}
}

func TestContainerName(t *testing.T) {
	if got := containerName("sess_01JXAMPLEULIDLONG"); got != "demo-01JXAMPL" {
		t.Errorf("containerName = %q", got)
	}
	if got := containerName("short"); got != "demo-short" {
		t.Errorf("containerName = %q", got)
	}
}
