// Package sandbox materializes isolated, resource-capped Docker containers
// for untrusted user programs and hands back an opaque handle for I/O and
// lifecycle control. Raw Docker primitives never leave this package.
package sandbox

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"codecell/internal/logging"
)

// Limits are the resource caps applied to every sandbox at creation time.
// They cannot be adjusted after the container starts.
type Limits struct {
	MemoryBytes int64
	CPUCores    float64
	PidsLimit   int64
	ScratchSize string
}

// Config configures the provisioner.
type Config struct {
	DockerHost  string
	Image       string
	WorkDir     string
	ProgramName string
	Limits      Limits
}

// Provisioner creates sandboxes against a local Docker daemon.
type Provisioner struct {
	cli *client.Client
	cfg Config
	log *zap.Logger
}

// NewProvisioner connects to the Docker daemon, verifies it is reachable, and
// ensures the sandbox image is present (pulling it on first run).
func NewProvisioner(ctx context.Context, cfg Config) (*Provisioner, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithHost(cfg.DockerHost),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client init: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	p := &Provisioner{cli: cli, cfg: cfg, log: logging.L().Named("sandbox")}
	if err := p.ensureImage(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provisioner) ensureImage(ctx context.Context) error {
	if _, _, err := p.cli.ImageInspectWithRaw(ctx, p.cfg.Image); err == nil {
		return nil
	}

	p.log.Info("pulling sandbox image", zap.String("image", p.cfg.Image))
	rc, err := p.cli.ImagePull(ctx, p.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", p.cfg.Image, err)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

// Provision creates and starts a sandbox running the workspace's program.
// The combined I/O stream is attached before the container starts so that no
// early output is lost. Any failure is cleaned up before returning.
func (p *Provisioner) Provision(ctx context.Context, ws *Workspace) (*Sandbox, error) {
	scriptTarget := p.cfg.WorkDir + "/" + p.cfg.ProgramName
	scratch := fmt.Sprintf("size=%s,mode=1777", p.cfg.Limits.ScratchSize)
	pids := p.cfg.Limits.PidsLimit

	created, err := p.cli.ContainerCreate(ctx,
		&container.Config{
			Image:           p.cfg.Image,
			Cmd:             []string{"python3", "-u", scriptTarget},
			WorkingDir:      p.cfg.WorkDir,
			OpenStdin:       true,
			Tty:             true,
			NetworkDisabled: true,
			User:            "65534:65534",
			Env: []string{
				"PYTHONIOENCODING=utf-8",
				"PYTHON_COLORS=0",
			},
		},
		&container.HostConfig{
			ReadonlyRootfs: true,
			NetworkMode:    "none",
			CapDrop:        []string{"ALL"},
			SecurityOpt:    []string{"no-new-privileges:true"},
			Binds:          []string{ws.ScriptPath + ":" + scriptTarget + ":ro"},
			Tmpfs: map[string]string{
				p.cfg.WorkDir: scratch,
				"/tmp":        scratch,
			},
			Resources: container.Resources{
				Memory:     p.cfg.Limits.MemoryBytes,
				MemorySwap: p.cfg.Limits.MemoryBytes, // no swap headroom
				NanoCPUs:   int64(p.cfg.Limits.CPUCores * 1e9),
				PidsLimit:  &pids,
			},
		},
		&network.NetworkingConfig{}, nil, "codecell-"+uuid.New().String()[:12])
	if err != nil {
		return nil, fmt.Errorf("container create: %w", err)
	}

	sb := &Sandbox{cli: p.cli, id: created.ID, log: p.log}

	// Attach before start: the first bytes of output must not be lost.
	attach, err := p.cli.ContainerAttach(ctx, created.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		_ = sb.Destroy(context.Background())
		return nil, fmt.Errorf("container attach: %w", err)
	}
	sb.attach = attach

	if err := p.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = sb.Destroy(context.Background())
		return nil, fmt.Errorf("container start: %w", err)
	}

	p.log.Debug("sandbox started", zap.String("container", created.ID[:12]))
	return sb, nil
}

// Close releases the underlying Docker client.
func (p *Provisioner) Close() error {
	return p.cli.Close()
}
