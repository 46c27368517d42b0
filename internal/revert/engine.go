// Package revert implements the artifact reversal engine: it reverses a
// single *persisted* Artifact, independent of the in-memory pending-op
// closures internal/execctx uses while a step is still live. Step and job
// reverts operate on artifacts that may have been committed long ago, so
// reversal here always works from Artifact.BeforeState/AfterState rather
// than a closure.
package revert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
)

const frontmatterSep = "---"

// Engine reverses persisted artifacts.
type Engine struct {
	log logger.Log
}

func New(logFactory logger.LogFactory) *Engine {
	return &Engine{log: logFactory("revert")}
}

// RevertArtifact undoes artifact's on-disk effect. It is idempotent on an
// already-reverted artifact (no-op, returns nil) and tolerant of a missing
// filesystem target (logs a warning, returns nil). It returns a non-nil
// error (gerror.CodeRevertConflict for an occupied move-back destination)
// only for genuine reversal failures.
func (e *Engine) RevertArtifact(ctx context.Context, artifact *model.Artifact) error {
	if artifact.Status != model.ArtifactStatusCreated {
		return nil // already reverted, or never committed: nothing to do
	}

	switch artifact.ArtifactType {
	case model.ArtifactTypeFileCreate:
		return e.revertFileCreate(artifact)
	case model.ArtifactTypeFileModify:
		return e.revertFileModify(artifact)
	case model.ArtifactTypeFileDelete:
		return e.revertFileDelete(artifact)
	case model.ArtifactTypeFileMove:
		return e.revertFileMove(artifact)
	case model.ArtifactTypeFrontmatterUpdate:
		return e.revertFrontmatterUpdate(artifact)
	case model.ArtifactTypeExternalAPICreate, model.ArtifactTypeExternalAPIModify, model.ArtifactTypeMetadata:
		// External-API artifacts are never auto-reverted here, only recorded
		// and (if reversible) replayed via the processor's explicit revert
		// logic. Metadata artifacts are purely informational. Both are no-ops.
		return nil
	default:
		return fmt.Errorf("error unknown artifact type %q", artifact.ArtifactType)
	}
}

func stringField(m model.JSONMap, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func (e *Engine) revertFileCreate(artifact *model.Artifact) error {
	if err := os.Remove(artifact.Target); err != nil {
		if os.IsNotExist(err) {
			e.log.Warnf("revert of create on %s: target already missing", artifact.Target)
			return nil
		}
		return fmt.Errorf("error removing %s during revert: %w", artifact.Target, err)
	}
	return nil
}

func (e *Engine) revertFileModify(artifact *model.Artifact) error {
	if _, err := os.Stat(artifact.Target); err != nil {
		if os.IsNotExist(err) {
			e.log.Warnf("revert of modify on %s: target no longer exists", artifact.Target)
			return nil
		}
		return fmt.Errorf("error statting %s during revert: %w", artifact.Target, err)
	}
	content := stringField(artifact.BeforeState, "content")
	if err := os.WriteFile(artifact.Target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("error restoring %s during revert: %w", artifact.Target, err)
	}
	return nil
}

func (e *Engine) revertFileDelete(artifact *model.Artifact) error {
	if _, err := os.Stat(artifact.Target); err == nil {
		e.log.Warnf("revert of delete on %s: a file already exists there; overwriting with archived content", artifact.Target)
	}
	content := stringField(artifact.BeforeState, "content")
	if err := os.MkdirAll(filepath.Dir(artifact.Target), 0o755); err != nil {
		return fmt.Errorf("error creating parent directories for %s during revert: %w", artifact.Target, err)
	}
	if err := os.WriteFile(artifact.Target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("error recreating %s during revert: %w", artifact.Target, err)
	}
	return nil
}

func (e *Engine) revertFileMove(artifact *model.Artifact) error {
	originalPath := stringField(artifact.BeforeState, "path")
	currentPath := stringField(artifact.AfterState, "path")

	if _, err := os.Stat(currentPath); err != nil {
		if os.IsNotExist(err) {
			e.log.Warnf("revert of move on %s: current location is missing", currentPath)
			return nil
		}
		return fmt.Errorf("error statting %s during revert: %w", currentPath, err)
	}
	if _, err := os.Stat(originalPath); err == nil {
		return gerror.Newf(gerror.CodeRevertConflict, "error revert move-back destination %s is occupied", originalPath)
	}
	if err := os.MkdirAll(filepath.Dir(originalPath), 0o755); err != nil {
		return fmt.Errorf("error creating parent directories for %s during revert: %w", originalPath, err)
	}
	if err := os.Rename(currentPath, originalPath); err != nil {
		return fmt.Errorf("error moving %s back to %s during revert: %w", currentPath, originalPath, err)
	}
	return nil
}

func (e *Engine) revertFrontmatterUpdate(artifact *model.Artifact) error {
	raw, err := os.ReadFile(artifact.Target)
	if err != nil {
		if os.IsNotExist(err) {
			e.log.Warnf("revert of frontmatter update on %s: target no longer exists", artifact.Target)
			return nil
		}
		return fmt.Errorf("error reading %s during revert: %w", artifact.Target, err)
	}

	_, body := splitFrontmatter(raw)
	rendered, err := renderFrontmatter(artifact.BeforeState, body)
	if err != nil {
		return err
	}
	if err := os.WriteFile(artifact.Target, rendered, 0o644); err != nil {
		return fmt.Errorf("error restoring frontmatter on %s during revert: %w", artifact.Target, err)
	}
	return nil
}

func splitFrontmatter(raw []byte) (map[string]interface{}, string) {
	text := string(raw)
	if !strings.HasPrefix(text, frontmatterSep+"\n") {
		return map[string]interface{}{}, text
	}
	rest := text[len(frontmatterSep):]
	idx := strings.Index(rest, "\n"+frontmatterSep)
	if idx == -1 {
		return map[string]interface{}{}, text
	}
	fmBlock := rest[:idx]
	body := rest[idx+len(frontmatterSep)+1:]
	if len(body) > 0 && body[0] == '\n' {
		body = body[1:]
	}
	var fm map[string]interface{}
	if err := yaml.Unmarshal([]byte(fmBlock), &fm); err != nil {
		return map[string]interface{}{}, text
	}
	if fm == nil {
		fm = map[string]interface{}{}
	}
	return fm, body
}


func renderFrontmatter(fm map[string]interface{}, body string) ([]byte, error) {
	if len(fm) == 0 {
		return []byte(body), nil
	}
	marshalled, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("error rendering frontmatter during revert: %w", err)
	}
	out := frontmatterSep + "\n" + string(marshalled) + frontmatterSep + "\n" + body
	return []byte(out), nil
}
