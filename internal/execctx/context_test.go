package execctx_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/docflow/internal/execctx"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
)

type memStore struct {
	created []*model.Artifact
}

func (m *memStore) Create(a *model.Artifact) error {
	m.created = append(m.created, a)
	return nil
}

func (m *memStore) MarkStatus(id model.ArtifactID, status model.ArtifactStatus, errMsg string) error {
	for _, a := range m.created {
		if a.ID == id {
			a.Status = status
			a.Error = errMsg
		}
	}
	return nil
}

func fixedClock() model.Time {
	return model.NewTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func newTestContext(t *testing.T, store *memStore) *execctx.Context {
	t.Helper()
	return execctx.New(logger.Discard(), store, fixedClock, model.NewJobID(), model.NewStepResultID(), "test-step")
}

func TestCreateFileCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.CreateFile(path, []byte("hello"), "")
	require.NoError(t, err)
	require.FileExists(t, path)

	require.NoError(t, ctx.Commit())
	require.Len(t, store.created, 1)
	require.Equal(t, model.ArtifactStatusCreated, store.created[0].Status)
}

func TestCreateFileRollback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.CreateFile(path, []byte("hello"), "")
	require.NoError(t, err)

	ctx.Rollback()
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
	require.Empty(t, store.created)
}

func TestModifyFileRollbackRestoresOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.ModifyFile(path, []byte("changed"), "")
	require.NoError(t, err)
	content, _ := os.ReadFile(path)
	require.Equal(t, "changed", string(content))

	ctx.Rollback()
	content, _ = os.ReadFile(path)
	require.Equal(t, "original", string(content))
}

func TestDeleteFileRollbackRecreates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("gone soon"), 0o644))

	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.DeleteFile(path)
	require.NoError(t, err)
	require.NoFileExists(t, path)

	ctx.Rollback()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "gone soon", string(content))
}

func TestMoveFileRollbackMovesBack(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.MoveFile(src, dst)
	require.NoError(t, err)
	require.FileExists(t, dst)
	require.NoFileExists(t, src)

	ctx.Rollback()
	require.FileExists(t, src)
	require.NoFileExists(t, dst)
}

func TestMoveFileRejectsOccupiedDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("already here"), 0o644))

	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.MoveFile(src, dst)
	require.Error(t, err)
}

func TestUpdateFrontmatterMergeAndRollback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	original := "---\ntitle: Hello\ntags:\n  - a\n---\nBody text.\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.UpdateFrontmatter(path, map[string]interface{}{"status": "tagged"})
	require.NoError(t, err)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(updated), "status: tagged")
	require.Contains(t, string(updated), "Body text.")

	ctx.Rollback()
	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(restored), "status: tagged")
	require.Contains(t, string(restored), "Body text.")
}

func TestUpdateFrontmatterIgnoresNonDelimiterFirstLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	// "---a: 1" is valid YAML after the prefix, but the first line is not
	// exactly the delimiter, so the whole file is body.
	original := "---a: 1\n---\nBody text.\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.UpdateFrontmatter(path, map[string]interface{}{"status": "tagged"})
	require.NoError(t, err)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(updated), "status: tagged")
	require.True(t, strings.HasSuffix(string(updated), original),
		"the original content survives untouched as the body")
}

func TestRecordAPICallHasNoOnDiskEffectAndIsNotUndone(t *testing.T) {
	store := &memStore{}
	ctx := newTestContext(t, store)

	artifact, err := ctx.RecordAPICall("crm", "create_contact",
		map[string]interface{}{"email": "a@example.com"},
		map[string]interface{}{"id": "123"},
		true,
		map[string]interface{}{"action": "delete_contact", "id": "123"},
	)
	require.NoError(t, err)
	require.Equal(t, model.ReversibilityManual, artifact.Reversibility)

	// Rollback must not panic or error even though there is no undo closure.
	ctx.Rollback()
}

func TestCommitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.CreateFile(path, []byte("hello"), "")
	require.NoError(t, err)

	require.NoError(t, ctx.Commit())
	require.NoError(t, ctx.Commit())
	require.Len(t, store.created, 1)
}

func TestRollbackAfterCommitIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	store := &memStore{}
	ctx := newTestContext(t, store)

	_, err := ctx.CreateFile(path, []byte("hello"), "")
	require.NoError(t, err)
	require.NoError(t, ctx.Commit())

	ctx.Rollback()
	require.FileExists(t, path)
}
