package sandbox

import (
	"context"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// State is a snapshot of a sandbox's exit condition.
type State struct {
	Running   bool
	ExitCode  int
	OOMKilled bool
}

// Sandbox is a handle to one running container. It is safe for use from the
// session's reader and watchdog goroutines concurrently.
type Sandbox struct {
	cli    *client.Client
	id     string
	attach types.HijackedResponse
	log    *zap.Logger

	outOnce sync.Once
	out     chan []byte

	destroyOnce sync.Once
	destroyErr  error
}

// ID returns the short container identifier, for log correlation.
func (s *Sandbox) ID() string {
	if len(s.id) > 12 {
		return s.id[:12]
	}
	return s.id
}

// Write sends bytes to the program's stdin.
func (s *Sandbox) Write(data []byte) error {
	_, err := s.attach.Conn.Write(data)
	return err
}

// Output returns the combined stdout/stderr stream as a channel of chunks.
// The container runs with a TTY, so the stream is raw and already merged.
// The channel closes when the program exits or the stream breaks.
func (s *Sandbox) Output() <-chan []byte {
	s.outOnce.Do(func() {
		s.out = make(chan []byte, 64)
		go func() {
			defer close(s.out)
			buf := make([]byte, 4096)
			for {
				n, err := s.attach.Reader.Read(buf)
				if n > 0 {
					chunk := make([]byte, n)
					copy(chunk, buf[:n])
					s.out <- chunk
				}
				if err != nil {
					if err != io.EOF {
						s.log.Debug("attach stream closed",
							zap.String("container", s.ID()), zap.Error(err))
					}
					return
				}
			}
		}()
	})
	return s.out
}

// Inspect reports whether the program is still running and how it exited.
func (s *Sandbox) Inspect(ctx context.Context) (State, error) {
	info, err := s.cli.ContainerInspect(ctx, s.id)
	if err != nil {
		return State{}, err
	}
	st := State{Running: info.State.Running, ExitCode: info.State.ExitCode}
	if info.State.OOMKilled {
		st.OOMKilled = true
	}
	return st, nil
}

// Kill delivers SIGKILL to the container's init process.
func (s *Sandbox) Kill(ctx context.Context) error {
	return s.cli.ContainerKill(ctx, s.id, "SIGKILL")
}

// Logs fetches everything the program wrote, from the daemon's own capture.
// Used as a fallback when the attach stream produced nothing but the program
// failed, so the user still sees the traceback.
func (s *Sandbox) Logs(ctx context.Context) ([]byte, error) {
	rc, err := s.cli.ContainerLogs(ctx, s.id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	// TTY containers produce a raw stream, no multiplexing header to strip.
	return io.ReadAll(rc)
}

// Destroy force-removes the container and closes the attach stream. It is
// idempotent and safe to call from a deferred teardown path.
func (s *Sandbox) Destroy(ctx context.Context) error {
	s.destroyOnce.Do(func() {
		if s.attach.Conn != nil {
			s.attach.Close()
		}
		s.destroyErr = s.cli.ContainerRemove(ctx, s.id, container.RemoveOptions{
			Force: true,
		})
		if s.destroyErr != nil {
			s.log.Warn("container remove failed",
				zap.String("container", s.ID()), zap.Error(s.destroyErr))
		}
	})
	return s.destroyErr
}
