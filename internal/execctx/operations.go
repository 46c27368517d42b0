package execctx

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/buildbeaver/docflow/internal/model"
)

const (
	encodingBase64 = "base64"
	frontmatterSep = "---"
)

func decodeContent(content []byte, encoding string) ([]byte, error) {
	if encoding != encodingBase64 {
		return content, nil
	}
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(content)))
	n, err := base64.StdEncoding.Decode(decoded, content)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 content: %w", err)
	}
	return decoded[:n], nil
}

// CreateFile records the creation of a new file at path. The write happens
// immediately (so later steps in the same execution see it), but the
// artifact is only persisted to the store on Commit; an uncommitted create
// is undone by deleting the file on Rollback.
func (c *Context) CreateFile(path string, content []byte, encoding string) (*model.Artifact, error) {
	if fileExists(path) {
		return nil, fmt.Errorf("error create_file target %s already exists", path)
	}
	decoded, err := decodeContent(content, encoding)
	if err != nil {
		return nil, err
	}
	if err := writeFile(path, decoded); err != nil {
		return nil, fmt.Errorf("error creating file %s: %w", path, err)
	}

	artifact := model.NewArtifact(c.jobID, c.stepResID, c.stepName, model.ArtifactTypeFileCreate, path, model.ReversibilityFully, c.now())
	artifact.AfterState = model.JSONMap{"size": len(decoded)}

	return c.record(artifact, func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error removing %s during rollback: %w", path, err)
		}
		return nil
	}), nil
}

// ModifyFile records overwriting an existing file's content, capturing the
// prior content in BeforeState so rollback can restore it exactly.
func (c *Context) ModifyFile(path string, newContent []byte, encoding string) (*model.Artifact, error) {
	decoded, err := decodeContent(newContent, encoding)
	if err != nil {
		return nil, err
	}
	before, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s before modify: %w", path, err)
	}
	if err := writeFile(path, decoded); err != nil {
		return nil, fmt.Errorf("error modifying file %s: %w", path, err)
	}

	artifact := model.NewArtifact(c.jobID, c.stepResID, c.stepName, model.ArtifactTypeFileModify, path, model.ReversibilityFully, c.now())
	artifact.BeforeState = model.JSONMap{"content": string(before)}
	artifact.AfterState = model.JSONMap{"content": string(decoded)}

	return c.record(artifact, func() error {
		return writeFile(path, before)
	}), nil
}

// DeleteFile records removing path, buffering its prior bytes so the delete
// can be reversed by recreating the file. Deleting a path that
// no longer exists is itself tolerated at rollback time per the reversal
// engine's idempotence requirement, not here: the delete operation itself
// requires the file to currently exist.
func (c *Context) DeleteFile(path string) (*model.Artifact, error) {
	before, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s before delete: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("error deleting file %s: %w", path, err)
	}

	artifact := model.NewArtifact(c.jobID, c.stepResID, c.stepName, model.ArtifactTypeFileDelete, path, model.ReversibilityFully, c.now())
	artifact.BeforeState = model.JSONMap{"content": string(before)}

	return c.record(artifact, func() error {
		return writeFile(path, before)
	}), nil
}

// MoveFile records relocating a file from src to dst. Reverting a committed
// move is the reversal engine's job (internal/revert), which reports an
// occupied src as a conflict; the rollback closure recorded here likewise
// refuses to move the file back when src is occupied and returns an error.
func (c *Context) MoveFile(src, dst string) (*model.Artifact, error) {
	if fileExists(dst) {
		return nil, fmt.Errorf("error move destination %s already exists", dst)
	}
	content, err := readFile(src)
	if err != nil {
		return nil, fmt.Errorf("error reading %s before move: %w", src, err)
	}
	if err := writeFile(dst, content); err != nil {
		return nil, fmt.Errorf("error writing move destination %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		return nil, fmt.Errorf("error removing move source %s: %w", src, err)
	}

	artifact := model.NewArtifact(c.jobID, c.stepResID, c.stepName, model.ArtifactTypeFileMove, dst, model.ReversibilityFully, c.now())
	artifact.BeforeState = model.JSONMap{"path": src}
	artifact.AfterState = model.JSONMap{"path": dst}

	return c.record(artifact, func() error {
		back, err := readFile(dst)
		if err != nil {
			return fmt.Errorf("error reading %s during move rollback: %w", dst, err)
		}
		if fileExists(src) {
			return fmt.Errorf("error move rollback destination %s is occupied", src)
		}
		if err := writeFile(src, back); err != nil {
			return err
		}
		return os.Remove(dst)
	}), nil
}

// splitFrontmatter splits a YAML-frontmatter file into (frontmatter, body).
// Frontmatter starts only when the first line is exactly the "---"
// delimiter; a line merely prefixed with it (e.g. "---a: 1") is body.
// Malformed YAML is non-fatal: the whole file is treated as body
// with empty frontmatter rather than returning an error.
func splitFrontmatter(raw []byte) (map[string]interface{}, string) {
	text := string(raw)
	if !strings.HasPrefix(text, frontmatterSep+"\n") {
		return map[string]interface{}{}, text
	}
	rest := text[len(frontmatterSep):]
	end := strings.Index(rest, "\n"+frontmatterSep)
	if end == -1 {
		return map[string]interface{}{}, text
	}
	fmBlock := rest[:end]
	body := rest[end+len(frontmatterSep)+1:]
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
		return nil, fmt.Errorf("error rendering frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(frontmatterSep)
	buf.WriteString("\n")
	buf.Write(marshalled)
	buf.WriteString(frontmatterSep)
	buf.WriteString("\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// UpdateFrontmatter merges updates into a file's YAML frontmatter block,
// preserving the document body byte-for-byte, and records the prior
// frontmatter so the merge can be reversed.
func (c *Context) UpdateFrontmatter(path string, updates map[string]interface{}) (*model.Artifact, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s before frontmatter update: %w", path, err)
	}
	before, body := splitFrontmatter(raw)

	after := model.JSONMap(before).Clone()
	for k, v := range updates {
		after[k] = v
	}

	rendered, err := renderFrontmatter(after, body)
	if err != nil {
		return nil, err
	}
	if err := writeFile(path, rendered); err != nil {
		return nil, fmt.Errorf("error writing %s after frontmatter update: %w", path, err)
	}

	artifact := model.NewArtifact(c.jobID, c.stepResID, c.stepName, model.ArtifactTypeFrontmatterUpdate, path, model.ReversibilityFully, c.now())
	artifact.BeforeState = model.JSONMap(before)
	artifact.AfterState = after

	return c.record(artifact, func() error {
		restored, err := renderFrontmatter(before, body)
		if err != nil {
			return err
		}
		return writeFile(path, restored)
	}), nil
}

// RecordAPICall records a call to an external system that docflow does not
// itself perform the rollback transport for; reverseAction is stored as
// metadata describing how a human or a later automation could undo it.
// Reversibility reflects the reversible flag the caller asserts.
func (c *Context) RecordAPICall(service, action string, request, response map[string]interface{}, reversible bool, reverseAction map[string]interface{}) (*model.Artifact, error) {
	reversibility := model.ReversibilityIrreversible
	if reversible {
		reversibility = model.ReversibilityManual
	}

	artifact := model.NewArtifact(c.jobID, c.stepResID, c.stepName, model.ArtifactTypeExternalAPICreate, service+":"+action, reversibility, c.now())
	artifact.BeforeState = model.JSONMap(request)
	artifact.AfterState = model.JSONMap(response)
	if reverseAction != nil {
		artifact.Metadata = model.JSONMap{"reverse_action": reverseAction}
	}

	// External API calls have no local on-disk effect, so there is nothing
	// for Rollback to undo; undo is nil (see Rollback's nil check).
	return c.record(artifact, nil), nil
}
