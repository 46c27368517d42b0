// Package execctx implements the scoped artifact recorder: a per-(job,
// step) Execution Context that buffers recorded side effects in memory and
// only persists them on Commit, or undoes them in reverse order on
// Rollback.
package execctx

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
)

// ArtifactStore is the narrow persistence surface the context needs.
type ArtifactStore interface {
	Create(artifact *model.Artifact) error
	MarkStatus(id model.ArtifactID, status model.ArtifactStatus, errMsg string) error
}

// Clock supplies the current time, injected so tests can control it.
type Clock func() model.Time

// pendingOp pairs an artifact with the closure that performs its on-disk
// rollback, so Rollback can walk pending operations in reverse without a
// type switch over ArtifactType.
type pendingOp struct {
	artifact *model.Artifact
	undo     func() error
}

// Context is a scoped recorder constructed per (job, step). It is not safe
// for concurrent use by multiple goroutines (a single step runs serially),
// but internal bookkeeping is still mutex-guarded defensively since
// processors may call recorder methods from helper goroutines they spawn.
type Context struct {
	mu        sync.Mutex
	log       logger.Log
	store     ArtifactStore
	clock     Clock
	jobID     model.JobID
	stepResID model.StepResultID
	stepName  string

	pending    []*pendingOp
	committed  bool
	rolledBack bool
}

// New constructs an Execution Context for one step execution.
func New(logFactory logger.LogFactory, store ArtifactStore, clock Clock, jobID model.JobID, stepResultID model.StepResultID, stepName string) *Context {
	return &Context{
		log:       logFactory("execctx"),
		store:     store,
		clock:     clock,
		jobID:     jobID,
		stepResID: stepResultID,
		stepName:  stepName,
	}
}

func (c *Context) now() model.Time { return c.clock() }

func (c *Context) record(artifact *model.Artifact, undo func() error) *model.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, &pendingOp{artifact: artifact, undo: undo})
	return artifact
}

// Commit flushes every pending artifact to the store with status=created.
// It is a no-op after the first call.
func (c *Context) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed || c.rolledBack {
		return nil
	}
	for _, op := range c.pending {
		op.artifact.Status = model.ArtifactStatusCreated
		if err := c.store.Create(op.artifact); err != nil {
			return fmt.Errorf("error committing artifact %s: %w", op.artifact.ID, err)
		}
	}
	c.committed = true
	return nil
}

// Rollback undoes every pending artifact's on-disk effect in reverse
// insertion order. Nothing is ever persisted to the store on rollback; a
// failing step leaves no visible artifacts. Calling Rollback
// after Commit logs a warning and is a no-op.
func (c *Context) Rollback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed {
		c.log.Warnf("rollback called after commit for step %q; ignoring", c.stepName)
		return
	}
	if c.rolledBack {
		return
	}
	for i := len(c.pending) - 1; i >= 0; i-- {
		op := c.pending[i]
		if op.undo == nil {
			continue // external-API artifacts have no on-disk effect to undo
		}
		if err := op.undo(); err != nil {
			c.log.Warnf("error undoing artifact %s during rollback: %s", op.artifact.ID, err)
		}
	}
	c.rolledBack = true
}

// Pending returns a snapshot of the artifacts recorded so far, in insertion order.
func (c *Context) Pending() []*model.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.Artifact, len(c.pending))
	for i, op := range c.pending {
		out[i] = op.artifact
	}
	return out
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating parent directories for %s: %w", path, err)
	}
	return os.WriteFile(path, content, 0o644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
