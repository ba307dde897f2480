package sandbox

import (
	"context"
	"fmt"
)

// Runtime launches one sandbox per program: workspace on disk first, then the
// container, so the script exists before the process starts.
type Runtime struct {
	p    *Provisioner
	root string
}

func NewRuntime(p *Provisioner, workspaceRoot string) *Runtime {
	return &Runtime{p: p, root: workspaceRoot}
}

// Instance couples a running sandbox with its host workspace so both are
// released by a single Destroy.
type Instance struct {
	*Sandbox
	ws *Workspace
}

func (r *Runtime) Launch(ctx context.Context, program string) (*Instance, error) {
	ws, err := NewWorkspace(r.root, r.p.cfg.ProgramName, program)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	sb, err := r.p.Provision(ctx, ws)
	if err != nil {
		_ = ws.Remove()
		return nil, err
	}
	return &Instance{Sandbox: sb, ws: ws}, nil
}

func (i *Instance) Destroy(ctx context.Context) error {
	err := i.Sandbox.Destroy(ctx)
	if rerr := i.ws.Remove(); rerr != nil && err == nil {
		err = rerr
	}
	return err
}
