package diagram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const sandboxWorkDir = "/work"

// DockerAPI is the subset of the Docker client the executor needs.
type DockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	Ping(ctx context.Context) (types.Ping, error)
}

// DockerLimits bounds a single sandbox run.
type DockerLimits struct {
	MemoryBytes int64
	PidsLimit   int64
	NanoCPUs    int64
}

// DockerExecutor runs the harness in a throwaway container with networking
// disabled, a read-only root filesystem, every capability dropped and only
// the scratch work directory mounted.
type DockerExecutor struct {
	api    DockerAPI
	image  string
	limits DockerLimits
}

// NewDockerClient connects to the daemon configured by DOCKER_HOST and friends.
func NewDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// NewDockerExecutor creates an executor running image.
func NewDockerExecutor(api DockerAPI, image string, limits DockerLimits) *DockerExecutor {
	return &DockerExecutor{api: api, image: image, limits: limits}
}

// Ping checks daemon connectivity and that the sandbox image is present.
// The image is built from Dockerfile.sandbox in this package.
func (e *DockerExecutor) Ping(ctx context.Context) error {
	if _, err := e.api.Ping(ctx); err != nil {
		return err
	}
	if _, err := e.api.ImageInspect(ctx, e.image); err != nil {
		if cerrdefs.IsNotFound(err) {
			return fmt.Errorf("sandbox image %q not found; build it with Dockerfile.sandbox", e.image)
		}
		return fmt.Errorf("inspect sandbox image %q: %w", e.image, err)
	}
	return nil
}

func (e *DockerExecutor) containerSpec(workDir string) (*container.Config, *container.HostConfig) {
	pids := e.limits.PidsLimit
	cfg := &container.Config{
		Image:           e.image,
		Cmd:             []string{"python3", "-I", sandboxWorkDir + "/" + harnessFile, sandboxWorkDir},
		WorkingDir:      sandboxWorkDir,
		User:            "65534:65534",
		Env:             []string{"MPLCONFIGDIR=/tmp"},
		NetworkDisabled: true,
	}
	host := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=64m"},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workDir,
			Target: sandboxWorkDir,
		}},
		Resources: container.Resources{
			Memory:    e.limits.MemoryBytes,
			PidsLimit: &pids,
			NanoCPUs:  e.limits.NanoCPUs,
		},
	}
	return cfg, host
}

// Execute implements PlotExecutor. The container is force-removed on every
// path, including timeouts.
func (e *DockerExecutor) Execute(ctx context.Context, workDir string) error {
	// The sandbox user must be able to write the output next to the inputs.
	// #nosec G302 -- private temp dir removed after the run
	if err := os.Chmod(workDir, 0o777); err != nil {
		return fmt.Errorf("prepare work dir: %w", err)
	}
	cfg, host := e.containerSpec(workDir)
	created, err := e.api.ContainerCreate(ctx, cfg, host, nil, nil, "")
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	defer func() {
		// The request context may already be done; removal must still happen.
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := e.api.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true}); err != nil {
			slog.Warn("sandbox removal failed", slog.String("container", created.ID), slog.Any("error", err))
		}
	}()

	if err := e.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start sandbox: %w", err)
	}
	waitC, errC := e.api.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return fmt.Errorf("sandbox: %w", ctx.Err())
	case err := <-errC:
		return fmt.Errorf("wait sandbox: %w", err)
	case res := <-waitC:
		if res.Error != nil {
			return fmt.Errorf("sandbox: %s", res.Error.Message)
		}
		if res.StatusCode != 0 {
			return fmt.Errorf("sandbox exited with status %d: %s", res.StatusCode, e.stderr(ctx, created.ID))
		}
	}
	return nil
}

func (e *DockerExecutor) stderr(ctx context.Context, id string) string {
	rc, err := e.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStderr: true})
	if err != nil {
		return ""
	}
	defer func() { _ = rc.Close() }()
	var stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(io.Discard, &stderr, rc)
	return tail(stderr.String(), 500)
}
