package sandbox

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	gencode "github.com/nevindra/gencode"
)

//go:embed harness.py
var harness string

// oomExitCode is the exit status of a process killed by the kernel OOM
// killer (128 + SIGKILL).
const oomExitCode = 137

// containerAPI is the subset of the Docker engine the Container runner needs.
type containerAPI interface {
	Create(ctx context.Context, cfg *container.Config, host *container.HostConfig, name string) (string, error)
	Start(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (int64, error)
	Logs(ctx context.Context, id string, stdout, stderr io.Writer) error
	Kill(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Close() error
}

// Container executes real Python in a throwaway Docker container: no network,
// read-only root filesystem, every Linux capability dropped, no privilege
// escalation, and memory, CPU and process limits. The container is killed on
// timeout and always removed. Inside, a harness executes the code with a
// builtins table reduced to the configured CapabilitySet.
type Container struct {
	cfg config
	api containerAPI

	mu sync.Mutex // held for the whole of an ExecuteTo run
}

var _ gencode.SinkRunner = (*Container)(nil)

// NewContainer connects to the Docker daemon configured by the environment
// (DOCKER_HOST, DOCKER_CERT_PATH, ...).
func NewContainer(opts ...Option) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: docker client: %w", err)
	}
	return newContainer(dockerEngine{cli: cli}, opts...), nil
}

func newContainer(api containerAPI, opts ...Option) *Container {
	return &Container{cfg: buildConfig(opts), api: api}
}

// Close releases the Docker client.
func (c *Container) Close() error { return c.api.Close() }

// Capabilities returns the allow-list used to build the builtins table.
func (c *Container) Capabilities() CapabilitySet { return c.cfg.caps }

// Execute runs code in a fresh container with a private output capture.
func (c *Container) Execute(ctx context.Context, code string) gencode.ExecutionOutcome {
	return c.run(ctx, code, nil)
}

// ExecuteTo runs code and copies its output to sink once the container exits.
func (c *Container) ExecuteTo(ctx context.Context, code string, sink gencode.OutputSink) gencode.ExecutionOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run(ctx, code, sink)
}

func (c *Container) run(ctx context.Context, code string, sink gencode.OutputSink) (out gencode.ExecutionOutcome) {
	id := gencode.NewID()
	start := time.Now()
	buf := gencode.NewBufferSink(c.cfg.maxOutput)
	var target gencode.OutputSink = buf
	if sink != nil {
		target = gencode.TeeSink(buf, sink)
	}
	capt := bind(target)

	defer func() {
		capt.release()
		if r := recover(); r != nil {
			c.cfg.logger.Error("sandbox: container runner panic", "id", id, "panic", r)
			out = gencode.Failure(gencode.OutcomeError, fmt.Sprintf("InternalError: %v", r))
		}
		out.Duration = time.Since(start)
		c.cfg.logger.Debug("sandbox: run finished",
			"id", id, "engine", "container", "kind", out.Kind.String(), "duration", out.Duration)
	}()

	timeout := c.cfg.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = max(time.Until(dl), 0)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cid, err := c.api.Create(runCtx, c.containerConfig(code), c.hostConfig(), "gencode-"+id)
	if err != nil {
		c.cfg.logger.Warn("sandbox: container create failed", "id", id, "error", err)
		if client.IsErrConnectionFailed(err) {
			return gencode.Failure(gencode.OutcomeUnavailable, "sandbox unavailable: docker daemon unreachable")
		}
		return gencode.Failure(gencode.OutcomeUnavailable, "sandbox unavailable: "+err.Error())
	}
	// Cleanup uses a fresh context: runCtx may already be done.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := c.api.Remove(cleanupCtx, cid); err != nil {
			c.cfg.logger.Warn("sandbox: container remove failed", "id", id, "container", cid, "error", err)
		}
	}()

	if err := c.api.Start(runCtx, cid); err != nil {
		return gencode.Failure(gencode.OutcomeUnavailable, "sandbox unavailable: "+err.Error())
	}

	status, waitErr := c.api.Wait(runCtx, cid)
	if waitErr != nil {
		killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		c.api.Kill(killCtx, cid)
		cancel()
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return gencode.Failure(gencode.OutcomeError, "execution cancelled")
		case runCtx.Err() != nil:
			return gencode.Failure(gencode.OutcomeResourceExceeded,
				fmt.Sprintf("execution timed out after %s", timeout.Round(time.Millisecond)))
		}
		return gencode.Failure(gencode.OutcomeUnavailable, "sandbox unavailable: "+waitErr.Error())
	}

	logCtx, cancelLogs := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelLogs()
	if err := c.api.Logs(logCtx, cid, capt.Stdout(), capt.Stderr()); err != nil {
		c.cfg.logger.Warn("sandbox: container logs failed", "id", id, "error", err)
	}
	capt.release()

	switch status {
	case 0:
		text := strings.TrimSpace(buf.Output())
		if buf.Truncated() {
			text += truncationMarker
		}
		return gencode.Success(text)
	case oomExitCode:
		return gencode.Failure(gencode.OutcomeResourceExceeded,
			strings.TrimSpace(fmt.Sprintf("MemoryError: memory limit of %d bytes exceeded\n%s", c.cfg.memory, buf.Errors())))
	}
	text := strings.TrimSpace(buf.Errors())
	if text == "" {
		text = fmt.Sprintf("Error: exit status %d", status)
	}
	if buf.Truncated() {
		text += truncationMarker
	}
	return gencode.Failure(gencode.OutcomeError, text)
}

func (c *Container) containerConfig(code string) *container.Config {
	return &container.Config{
		Image: c.cfg.image,
		Cmd:   []string{c.cfg.python, "-I", "-c", harness},
		Env: []string{
			"GENCODE_CODE=" + base64.StdEncoding.EncodeToString([]byte(code)),
			"GENCODE_ALLOWED=" + strings.Join(c.cfg.caps.Names(), ","),
			"PYTHONDONTWRITEBYTECODE=1",
		},
		User:            "65534:65534", // nobody
		WorkingDir:      "/tmp",
		NetworkDisabled: true,
	}
}

func (c *Container) hostConfig() *container.HostConfig {
	pids := c.cfg.pidsLimit
	return &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=16m"},
		Resources: container.Resources{
			Memory:     c.cfg.memory,
			MemorySwap: c.cfg.memory,
			NanoCPUs:   c.cfg.nanoCPUs,
			PidsLimit:  &pids,
		},
	}
}

// dockerEngine adapts the Docker client to containerAPI.
type dockerEngine struct {
	cli *client.Client
}

func (d dockerEngine) Create(ctx context.Context, cfg *container.Config, host *container.HostConfig, name string) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d dockerEngine) Start(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (d dockerEngine) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case st := <-statusCh:
		if st.Error != nil {
			return 0, errors.New(st.Error.Message)
		}
		return st.StatusCode, nil
	case err := <-errCh:
		return 0, err
	}
}

func (d dockerEngine) Logs(ctx context.Context, id string, stdout, stderr io.Writer) error {
	rc, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = stdcopy.StdCopy(stdout, stderr, rc)
	return err
}

func (d dockerEngine) Kill(ctx context.Context, id string) error {
	return d.cli.ContainerKill(ctx, id, "SIGKILL")
}

func (d dockerEngine) Remove(ctx context.Context, id string) error {
	return d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (d dockerEngine) Close() error { return d.cli.Close() }
