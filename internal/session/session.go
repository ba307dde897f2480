// Package session implements the execution session lifecycle: a connected
// client is gated through abuse, capacity, credential, and duplicate-identity
// checks, its program is launched in a sandbox, live I/O is bridged in both
// directions under a watchdog, and every acquired resource is torn down when
// the session ends, on every path.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"codecell/internal/admission"
	"codecell/internal/guard"
	"codecell/internal/metrics"
	"codecell/internal/sandbox"
	"codecell/internal/store"
)

// maxFrameSize bounds a single inbound frame, program included.
const maxFrameSize = 1 << 20

// Conn is the message channel to one client. *websocket.Conn satisfies it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	SetReadLimit(limit int64)
	Close() error
}

// Instance is one live sandbox as the orchestrator sees it.
type Instance interface {
	Write(data []byte) error
	Output() <-chan []byte
	Inspect(ctx context.Context) (sandbox.State, error)
	Kill(ctx context.Context) error
	Logs(ctx context.Context) ([]byte, error)
	Destroy(ctx context.Context) error
}

// Runtime launches sandboxes. The Docker-backed implementation lives in the
// sandbox package; tests substitute a fake.
type Runtime interface {
	Launch(ctx context.Context, program string) (Instance, error)
}

// Config holds the per-session tunables.
type Config struct {
	ExecutionTimeout time.Duration
	PollInterval     time.Duration
	DrainGrace       time.Duration
	MemoryLimit      int64
}

// Orchestrator drives sessions. One instance serves all connections.
type Orchestrator struct {
	cfg     Config
	creds   *store.Store
	guard   *guard.Guard
	adm     *admission.Controller
	runtime Runtime
	log     *zap.Logger
}

func New(cfg Config, creds *store.Store, g *guard.Guard, adm *admission.Controller, rt Runtime, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		creds:   creds,
		guard:   g,
		adm:     adm,
		runtime: rt,
		log:     log.Named("session"),
	}
}

// Serve runs one session to completion. It owns the connection and closes it
// before returning.
func (o *Orchestrator) Serve(ctx context.Context, conn Conn, origin string) {
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	log := o.log.With(zap.String("origin", origin))
	w := &writer{conn: conn}

	defer func() {
		if r := recover(); r != nil {
			log.Error("session panic", zap.Any("panic", r))
			w.output(fmt.Sprintf("\nSystem Error: %v\n", r))
			w.end(1)
		}
	}()

	// Early capacity check, before the client spends time sending a program.
	// The acquire below is the authoritative gate.
	if !o.adm.TryAdmit() {
		log.Warn("server at capacity")
		metrics.SessionsRejected.WithLabelValues("capacity").Inc()
		w.output("\n[Server Busy] Please wait...\n")
		w.end(1)
		return
	}

	if err := o.adm.Acquire(ctx); err != nil {
		return
	}
	defer o.adm.Release()

	o.run(ctx, conn, w, origin, log)
}

func (o *Orchestrator) run(ctx context.Context, conn Conn, w *writer, origin string, log *zap.Logger) {
	var h hello
	if err := conn.ReadJSON(&h); err != nil {
		log.Debug("client left before hello", zap.Error(err))
		return
	}
	identity := strings.TrimSpace(h.Identity)
	secret := strings.TrimSpace(h.Secret)
	log = log.With(zap.String("identity", identity))

	if allowed, wait := o.guard.Check(origin); !allowed {
		log.Warn("origin in cooldown", zap.Duration("wait", wait))
		metrics.SessionsRejected.WithLabelValues("rate_limited").Inc()
		w.output(fmt.Sprintf("\n[Access Denied] Wait %ds.\n", int(wait.Seconds())))
		w.end(1)
		return
	}

	if !o.creds.Verify(identity, secret) {
		o.guard.RecordFailure(origin)
		metrics.AuthFailures.Inc()
		time.Sleep(o.guard.FailureDelay())
		log.Warn("authentication failed")
		metrics.SessionsRejected.WithLabelValues("auth").Inc()
		w.output("\n[Access Denied] Invalid credentials.\n")
		w.end(1)
		return
	}
	o.guard.RecordSuccess(origin)

	if !o.adm.MarkActive(identity) {
		log.Warn("concurrent session attempt")
		metrics.SessionsRejected.WithLabelValues("duplicate").Inc()
		w.output("\n[Access Denied] User already active.\n")
		w.end(1)
		return
	}
	defer o.adm.MarkInactive(identity)

	if h.Program == "" {
		log.Info("empty program submitted")
		return
	}

	metrics.SessionsStarted.Inc()
	log.Info("launching sandbox")

	inst, err := o.runtime.Launch(ctx, h.Program)
	if err != nil {
		log.Error("sandbox launch failed", zap.Error(err))
		metrics.SessionsCompleted.WithLabelValues("provision_failed").Inc()
		w.output("\nSystem Error: could not start execution environment.\n")
		w.end(1)
		return
	}
	metrics.ActiveSandboxes.Inc()
	defer func() {
		// Force-destroy regardless of how the session ended. A fresh context
		// keeps teardown working after client disconnect or timeout.
		dctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := inst.Destroy(dctx); err != nil {
			log.Error("sandbox teardown failed", zap.Error(err))
		}
		metrics.ActiveSandboxes.Dec()
	}()

	code, outcome := o.bridge(ctx, conn, w, inst, log)
	metrics.SessionsCompleted.WithLabelValues(outcome).Inc()
	w.end(code)
}

// bridge relays I/O between the client and the sandbox until the program
// stops, the timeout fires, or the client goes away, then classifies the
// outcome and returns the exit code to report.
func (o *Orchestrator) bridge(ctx context.Context, conn Conn, w *writer, inst Instance, log *zap.Logger) (int, string) {
	var hasOutput atomic.Bool

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		for chunk := range inst.Output() {
			hasOutput.Store(true)
			w.output(string(chunk))
		}
	}()

	// Reader pump: inbound frames flow through a channel so the watchdog loop
	// can select across them, the poll tick, and cancellation.
	frames := make(chan inbound, 16)
	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		for {
			var m inbound
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			select {
			case frames <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	timedOut := false
watch:
	for {
		st, err := inst.Inspect(ctx)
		if err != nil || !st.Running {
			break
		}

		if time.Since(start) > o.cfg.ExecutionTimeout {
			timedOut = true
			log.Warn("execution timeout", zap.Duration("limit", o.cfg.ExecutionTimeout))
			w.output(fmt.Sprintf("\n[Execution Timeout] Script killed after %ds.\n",
				int(o.cfg.ExecutionTimeout.Seconds())))
			if err := inst.Kill(ctx); err != nil {
				log.Warn("kill failed", zap.Error(err))
			}
			break
		}

		select {
		case m := <-frames:
			if m.Type == "input" {
				if err := inst.Write([]byte(m.Data)); err != nil {
					log.Debug("stdin write failed", zap.Error(err))
					break watch
				}
			}
		case <-readerGone:
			log.Info("client disconnected")
			break watch
		case <-ctx.Done():
			break watch
		case <-ticker.C:
		}
	}

	// Let the relay flush whatever the program printed on its way out, then
	// abandon it. An unfinished relay is not an error.
	select {
	case <-relayDone:
	case <-time.After(o.cfg.DrainGrace):
		log.Debug("output relay abandoned after drain grace")
	}

	st, err := inst.Inspect(context.Background())
	if err != nil {
		log.Error("final state unavailable", zap.Error(err))
		return 1, "error"
	}

	outcome := "success"
	switch {
	case st.OOMKilled:
		log.Warn("memory limit exceeded")
		w.output(fmt.Sprintf("\n[Resource Limit] Out of Memory: Script exceeded %dMiB.\n",
			o.cfg.MemoryLimit>>20))
		outcome = "oom"
	case timedOut:
		outcome = "timeout"
	case st.ExitCode == 137:
		// SIGKILL we did not send: the pids cgroup or an external actor.
		log.Warn("sandbox killed", zap.Int("exit_code", st.ExitCode))
		w.output("\n[Resource Limit] Script terminated (Likely hit process limit).\n")
		outcome = "killed"
	case st.ExitCode != 0:
		log.Info("program exited with error", zap.Int("exit_code", st.ExitCode))
		outcome = "error"
	default:
		log.Info("program completed")
	}

	// A non-zero exit with no live output usually means the program died
	// before the attach stream produced anything. The daemon's log buffer
	// still has the traceback.
	if !hasOutput.Load() && st.ExitCode != 0 {
		if logs, lerr := inst.Logs(context.Background()); lerr == nil && len(logs) > 0 {
			w.output(string(logs))
		} else if lerr != nil {
			log.Error("fallback log fetch failed", zap.Error(lerr))
		}
	}

	return st.ExitCode, outcome
}
