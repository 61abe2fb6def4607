package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// ttydPort is the port the terminal server listens on inside the container.
	ttydPort = 7681

	containerPrefix = "demo-"

	inspectTimeout = 2 * time.Second
	removeTimeout  = 3 * time.Second
)

// commandResult carries the outcome of one docker CLI invocation.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

type commandRunner func(ctx context.Context, args ...string) commandResult

// DockerDriver runs session workers as docker containers via the docker CLI.
type DockerDriver struct {
	image        string
	memoryLimit  string
	cpuLimit     string
	startTimeout time.Duration
	logger       *slog.Logger
	run          commandRunner
}

// DockerOptions configures a DockerDriver.
type DockerOptions struct {
	Image        string
	MemoryLimit  string
	CPULimit     string
	StartTimeout time.Duration
	Logger       *slog.Logger
}

// NewDockerDriver creates a driver for the given image and limits.
func NewDockerDriver(opts DockerOptions) *DockerDriver {
	d := &DockerDriver{
		image:        opts.Image,
		memoryLimit:  opts.MemoryLimit,
		cpuLimit:     opts.CPULimit,
		startTimeout: opts.StartTimeout,
		logger:       opts.Logger,
		run:          runDockerCLI,
	}
	if d.memoryLimit == "" {
		d.memoryLimit = "512m"
	}
	if d.cpuLimit == "" {
		d.cpuLimit = "0.5"
	}
	if d.startTimeout <= 0 {
		d.startTimeout = 30 * time.Second
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Start runs the demo container and waits for the runtime to report it
// running. On any failure the partially created container is removed so no
// orphan survives the error path.
func (d *DockerDriver) Start(ctx context.Context, sessionID string, port int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.startTimeout)
	defer cancel()

	name := containerName(sessionID)
	res := d.run(ctx, runArgs(name, d.image, port, d.memoryLimit, d.cpuLimit, sessionID)...)
	if res.Err != nil || res.ExitCode != 0 {
		d.removeContainer(name)
		return "", fmt.Errorf("docker run %s: %s: %w", name, failureDetail(res), ErrStartFailed)
	}

	ref := strings.TrimSpace(res.Stdout)
	if ref == "" {
		d.removeContainer(name)
		return "", fmt.Errorf("docker run %s returned no container id: %w", name, ErrStartFailed)
	}

	if err := d.waitRunning(ctx, ref); err != nil {
		d.removeContainer(ref)
		return "", fmt.Errorf("worker %s did not come up: %v: %w", name, err, ErrStartFailed)
	}
	return ref, nil
}

// Alive reports whether the container is still running.
func (d *DockerDriver) Alive(ctx context.Context, ref string) bool {
	ctx, cancel := context.WithTimeout(ctx, inspectTimeout)
	defer cancel()

	res := d.run(ctx, "inspect", "-f", "{{.State.Running}}", ref)
	if res.Err != nil || res.ExitCode != 0 {
		return false
	}
	return strings.TrimSpace(res.Stdout) == "true"
}

// Stop stops the container. A container that no longer exists is success:
// this is the primary external failure mode and must never break teardown.
func (d *DockerDriver) Stop(ctx context.Context, ref string) error {
	res := d.run(ctx, "stop", ref)
	if res.Err != nil {
		return fmt.Errorf("docker stop %s: %w", ref, res.Err)
	}
	if res.ExitCode != 0 && !isNoSuchContainer(res.Stderr) {
		return fmt.Errorf("docker stop %s: %s", ref, failureDetail(res))
	}
	return nil
}

// waitRunning polls container state until it is running or ctx expires.
func (d *DockerDriver) waitRunning(ctx context.Context, ref string) error {
	interval := 200 * time.Millisecond
	for {
		res := d.run(ctx, "inspect", "-f", "{{.State.Running}}", ref)
		if res.Err == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stdout) == "true" {
			return nil
		}
		// An exited container is removed right away (--rm); waiting out
		// the timeout cannot bring it back.
		if res.Err == nil && res.ExitCode != 0 && isNoSuchContainer(res.Stderr) {
			return errors.New("container exited during startup")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		if interval < 2*time.Second {
			interval = interval * 3 / 2
		}
	}
}

func (d *DockerDriver) removeContainer(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	res := d.run(ctx, "rm", "-f", ref)
	if res.Err != nil || (res.ExitCode != 0 && !isNoSuchContainer(res.Stderr)) {
		d.logger.Warn("failed to remove container after start failure",
			"container", ref, "detail", failureDetail(res))
	}
}

func containerName(sessionID string) string {
	id := strings.TrimPrefix(sessionID, "sess_")
	if len(id) > 8 {
		id = id[:8]
	}
	return containerPrefix + id
}

func runArgs(name, image string, port int, memory, cpus, sessionID string) []string {
	return []string{
		"run", "-d", "--rm",
		"--name", name,
		"-p", fmt.Sprintf("%d:%d", port, ttydPort),
		"--memory", memory,
		"--cpus", cpus,
		"-e", "SESSION_ID=" + sessionID,
		image,
	}
}

func runDockerCLI(ctx context.Context, args ...string) commandResult {
	cmd := exec.CommandContext(ctx, "docker", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			return commandResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: ctx.Err()}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return commandResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitErr.ExitCode()}
		}
		return commandResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	}
	return commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
}

func failureDetail(res commandResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	msg := fmt.Sprintf("exit code %d", res.ExitCode)
	if s := strings.TrimSpace(res.Stderr); s != "" {
		msg += ", stderr: " + s
	}
	return msg
}

func isNoSuchContainer(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "no such container")
}
