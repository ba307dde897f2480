package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the host-side scratch directory holding one session's
// submitted program. It exists before the sandbox starts and is removed
// after the sandbox is destroyed.
type Workspace struct {
	Dir        string
	ScriptPath string
}

// NewWorkspace creates a per-session scratch directory under root and writes
// the program into it. The directory is readable by the sandbox's unprivileged
// runtime identity but scoped so sessions cannot reach each other's files.
// The write completes before any container is created, so the sandbox never
// observes a partially written program.
func NewWorkspace(root, programName, program string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	dir, err := os.MkdirTemp(root, "session-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("chmod workspace: %w", err)
	}

	scriptPath := filepath.Join(dir, programName)
	if err := os.WriteFile(scriptPath, []byte(program), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write program: %w", err)
	}

	return &Workspace{Dir: dir, ScriptPath: scriptPath}, nil
}

// Remove deletes the workspace recursively. Best-effort; callers log and
// continue on error.
func (w *Workspace) Remove() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}
