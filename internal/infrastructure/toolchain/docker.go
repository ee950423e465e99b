package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// workspaceDir is where Command.Dir is mounted inside the container.
const workspaceDir = "/workspace"

// DockerConfig configures DockerRunner.
type DockerConfig struct {
	Image    string
	MemoryMB int64
	CPUs     float64
	Timeout  time.Duration
	Network  string
}

// DockerRunner runs every command in a fresh container with Command.Dir bind
// mounted at /workspace. The container is removed afterwards.
type DockerRunner struct {
	client *docker.Client
	cfg    DockerConfig
}

// NewDockerClient connects to the daemon configured by the DOCKER_*
// environment variables.
func NewDockerClient() (*docker.Client, error) {
	return docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
}

// NewDockerRunner creates a runner on top of an existing client.
func NewDockerRunner(client *docker.Client, cfg DockerConfig) *DockerRunner {
	return &DockerRunner{client: client, cfg: cfg}
}

// Run implements Runner.
func (r *DockerRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	source, err := filepath.Abs(cmd.Dir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", cmd.Dir, err)
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: source,
			Target: workspaceDir,
		}},
		Resources: container.Resources{
			Memory:   r.cfg.MemoryMB << 20,
			NanoCPUs: int64(r.cfg.CPUs * 1e9),
		},
	}
	if r.cfg.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(r.cfg.Network)
	}

	resp, err := r.client.ContainerCreate(
		ctx,
		&container.Config{
			Image:      r.cfg.Image,
			Cmd:        append([]string{cmd.Name}, cmd.Args...),
			Env:        cmd.Env,
			WorkingDir: workspaceDir,
		},
		hostConfig,
		nil,
		nil,
		"",
	)
	if err != nil {
		return Result{}, fmt.Errorf("create container for %q: %w", cmd.String(), err)
	}
	// The run context may already be cancelled here.
	defer r.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})

	start := time.Now()
	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("start container: %w", err)
	}

	var res Result
	statusCh, errCh := r.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return Result{}, fmt.Errorf("wait container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return Result{}, fmt.Errorf("wait container: %s", status.Error.Message)
		}
		res.ExitCode = int(status.StatusCode)
	}
	res.Duration = time.Since(start)

	logs, err := r.client.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return res, nil
	}
	defer logs.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, logs); err == nil {
		res.Output = truncate(out.String())
	}
	return res, nil
}
