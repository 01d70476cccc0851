package fileops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoshare/pkg/registry"
	"github.com/marmos91/dittoshare/pkg/resolve"
)

func testShare(t *testing.T, name string) *registry.Share {
	t.Helper()
	return &registry.Share{Name: name, Root: t.TempDir(), ListDir: true}
}

func writeFile(t *testing.T, share *registry.Share, rel, content string) {
	t.Helper()
	path := filepath.Join(share.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, share *registry.Share, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(share.Root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestUploadDownloadRoundtrip(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()

	payload := strings.Repeat("dittoshare round trip\n", 1000)
	written, err := ops.Upload(ctx, share, "docs.txt", strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), written)

	var buf bytes.Buffer
	read, err := ops.Download(ctx, share, "docs.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), read)
	assert.Equal(t, payload, buf.String())
}

func TestUploadOverwritesAtomically(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()

	writeFile(t, share, "data.bin", "old content")
	_, err := ops.Upload(ctx, share, "data.bin", strings.NewReader("new content"))
	require.NoError(t, err)
	assert.Equal(t, "new content", readFile(t, share, "data.bin"))
}

func TestUploadReadonlyShare(t *testing.T) {
	ops := New()
	share := testShare(t, "ro")
	share.ReadOnly = true
	writeFile(t, share, "keep.txt", "original")

	_, err := ops.Upload(context.Background(), share, "keep.txt", strings.NewReader("clobber"))
	require.ErrorIs(t, err, ErrForbidden)

	// The share contents must be byte-for-byte untouched.
	assert.Equal(t, "original", readFile(t, share, "keep.txt"))
	entries, err := os.ReadDir(share.Root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadMissingParent(t *testing.T) {
	ops := New()
	share := testShare(t, "files")

	_, err := ops.Upload(context.Background(), share, "no/such/dir/file.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUploadLeavesNoTempOnFailure(t *testing.T) {
	ops := New()
	share := testShare(t, "files")

	failing := &failingReader{failAfter: 10}
	_, err := ops.Upload(context.Background(), share, "broken.bin", failing)
	require.Error(t, err)

	entries, err := os.ReadDir(share.Root)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed upload must not leave temp files or a partial target")
}

func TestUploadCancelledContext(t *testing.T) {
	ops := New()
	share := testShare(t, "files")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ops.Upload(ctx, share, "cancelled.bin", strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)

	entries, readErr := os.ReadDir(share.Root)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestConcurrentUploadsSameTarget(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()

	payloads := make([]string, 8)
	for i := range payloads {
		payloads[i] = strings.Repeat(fmt.Sprintf("writer-%d ", i), 4096)
	}

	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := ops.Upload(ctx, share, "contested.bin", strings.NewReader(p))
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	// Exactly one writer's full payload, never an interleaving.
	got := readFile(t, share, "contested.bin")
	assert.Contains(t, payloads, got)

	entries, err := os.ReadDir(share.Root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp residue after concurrent uploads")
}

func TestListSkipsTempFiles(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "visible.txt", "x")
	writeFile(t, share, tempName(), "in progress")

	entries, err := ops.List(context.Background(), share, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible.txt", entries[0].Name)
}

func TestListEntries(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "b.txt", "bb")
	writeFile(t, share, "a/nested.txt", "n")

	entries, err := ops.List(context.Background(), share, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// ReadDir sorts by name.
	assert.Equal(t, "a", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "b.txt", entries[1].Name)
	assert.False(t, entries[1].IsDir)
	assert.Equal(t, int64(2), entries[1].Size)
}

func TestListDirDisabled(t *testing.T) {
	ops := New()
	share := testShare(t, "opaque")
	share.ListDir = false
	writeFile(t, share, "secret.txt", "x")

	entries, err := ops.List(context.Background(), share, "")
	require.NoError(t, err)
	assert.Empty(t, entries, "listing disabled shares expose no entries")

	// Direct download still works.
	var buf bytes.Buffer
	_, err = ops.Download(context.Background(), share, "secret.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, "x", buf.String())
}

func TestListMissingDirectory(t *testing.T) {
	ops := New()
	share := testShare(t, "files")

	_, err := ops.List(context.Background(), share, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDownloadTraversal(t *testing.T) {
	ops := New()
	share := testShare(t, "shared")

	var buf bytes.Buffer
	_, err := ops.Download(context.Background(), share, "../../etc/passwd", &buf)
	require.ErrorIs(t, err, resolve.ErrTraversal)
	assert.Zero(t, buf.Len())
}

func TestMkdir(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()

	require.NoError(t, ops.Mkdir(ctx, share, "newdir"))
	info, err := os.Stat(filepath.Join(share.Root, "newdir"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.ErrorIs(t, ops.Mkdir(ctx, share, "newdir"), ErrConflict)
	require.ErrorIs(t, ops.Mkdir(ctx, share, "a/b/c"), ErrNotFound)

	share.ReadOnly = true
	require.ErrorIs(t, ops.Mkdir(ctx, share, "other"), ErrForbidden)
}

func TestDelete(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()
	writeFile(t, share, "gone.txt", "x")
	writeFile(t, share, "tree/deep/file.txt", "y")

	require.NoError(t, ops.Delete(ctx, share, "gone.txt"))
	require.NoError(t, ops.Delete(ctx, share, "tree"))
	_, err := os.Stat(filepath.Join(share.Root, "tree"))
	require.ErrorIs(t, err, os.ErrNotExist)

	require.ErrorIs(t, ops.Delete(ctx, share, "gone.txt"), ErrNotFound)
	require.ErrorIs(t, ops.Delete(ctx, share, ""), ErrForbidden)
	require.ErrorIs(t, ops.Delete(ctx, share, "/"), ErrForbidden)
}

func TestDeleteSymlinkNotFollowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "target/data.txt", "keep me")
	require.NoError(t, os.Symlink(filepath.Join(share.Root, "target"), filepath.Join(share.Root, "link")))

	require.NoError(t, ops.Delete(context.Background(), share, "link"))
	assert.Equal(t, "keep me", readFile(t, share, "target/data.txt"))

	_, err := os.Lstat(filepath.Join(share.Root, "link"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRename(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()
	writeFile(t, share, "docs/report.txt", "content")
	writeFile(t, share, "docs/existing.txt", "other")

	require.NoError(t, ops.Rename(ctx, share, "docs", "report.txt", "final.txt"))
	assert.Equal(t, "content", readFile(t, share, "docs/final.txt"))

	require.ErrorIs(t, ops.Rename(ctx, share, "docs", "final.txt", "existing.txt"), ErrConflict)
	require.ErrorIs(t, ops.Rename(ctx, share, "docs", "missing.txt", "x.txt"), ErrNotFound)
	require.ErrorIs(t, ops.Rename(ctx, share, "docs", "final.txt", "../escape.txt"), resolve.ErrTraversal)
	require.ErrorIs(t, ops.Rename(ctx, share, "docs", "final.txt", "a/b.txt"), resolve.ErrTraversal)
}

func TestMoveWithinShare(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()
	writeFile(t, share, "src/file.txt", "moved")
	require.NoError(t, ops.Mkdir(ctx, share, "dst"))

	require.NoError(t, ops.Move(ctx, share, "src/file.txt", share, "dst/file.txt", false))
	assert.Equal(t, "moved", readFile(t, share, "dst/file.txt"))
	_, err := os.Stat(filepath.Join(share.Root, "src", "file.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMoveAcrossShares(t *testing.T) {
	ops := New()
	src := testShare(t, "src")
	dst := testShare(t, "dst")
	ctx := context.Background()
	writeFile(t, src, "tree/a.txt", "a")
	writeFile(t, src, "tree/sub/b.txt", "b")

	require.NoError(t, ops.Move(ctx, src, "tree", dst, "tree", false))
	assert.Equal(t, "a", readFile(t, dst, "tree/a.txt"))
	assert.Equal(t, "b", readFile(t, dst, "tree/sub/b.txt"))
	_, err := os.Stat(filepath.Join(src.Root, "tree"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMoveConflictAndOverwrite(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()
	writeFile(t, share, "a.txt", "new")
	writeFile(t, share, "b.txt", "old")

	err := ops.Move(ctx, share, "a.txt", share, "b.txt", false)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "new", readFile(t, share, "a.txt"))
	assert.Equal(t, "old", readFile(t, share, "b.txt"))

	require.NoError(t, ops.Move(ctx, share, "a.txt", share, "b.txt", true))
	assert.Equal(t, "new", readFile(t, share, "b.txt"))
}

func TestMoveReadonlyEndpoints(t *testing.T) {
	ops := New()
	rw := testShare(t, "rw")
	ro := testShare(t, "ro")
	ro.ReadOnly = true
	ctx := context.Background()
	writeFile(t, rw, "f.txt", "x")
	writeFile(t, ro, "g.txt", "y")

	require.ErrorIs(t, ops.Move(ctx, rw, "f.txt", ro, "f.txt", false), ErrForbidden)
	require.ErrorIs(t, ops.Move(ctx, ro, "g.txt", rw, "g.txt", false), ErrForbidden)
	assert.Equal(t, "x", readFile(t, rw, "f.txt"))
	assert.Equal(t, "y", readFile(t, ro, "g.txt"))
}

func TestMoveShareRootForbidden(t *testing.T) {
	ops := New()
	src := testShare(t, "src")
	dst := testShare(t, "dst")
	writeFile(t, src, "a.txt", "stay")

	for _, rel := range []string{"", "/"} {
		err := ops.Move(context.Background(), src, rel, dst, "relocated", false)
		require.ErrorIs(t, err, ErrForbidden)
	}

	_, err := os.Stat(src.Root)
	require.NoError(t, err)
	assert.Equal(t, "stay", readFile(t, src, "a.txt"))
}

func TestCopyShareRootAllowed(t *testing.T) {
	ops := New()
	src := testShare(t, "src")
	dst := testShare(t, "dst")
	writeFile(t, src, "sub/a.txt", "dup")

	require.NoError(t, ops.Copy(context.Background(), src, "", dst, "snapshot", false))
	assert.Equal(t, "dup", readFile(t, dst, "snapshot/sub/a.txt"))
	assert.Equal(t, "dup", readFile(t, src, "sub/a.txt"))
}

func TestMoveSymlinkMovesLink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "target/data.txt", "keep me")
	target := filepath.Join(share.Root, "target")
	require.NoError(t, os.Symlink(target, filepath.Join(share.Root, "link")))
	require.NoError(t, ops.Mkdir(context.Background(), share, "dst"))

	require.NoError(t, ops.Move(context.Background(), share, "link", share, "dst/link", false))

	moved, err := os.Lstat(filepath.Join(share.Root, "dst", "link"))
	require.NoError(t, err)
	assert.NotZero(t, moved.Mode()&os.ModeSymlink)
	assert.Equal(t, "keep me", readFile(t, share, "target/data.txt"))
}

func TestMoveOverwriteSymlinkDest(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "new.txt", "incoming")
	writeFile(t, share, "target/data.txt", "keep me")
	require.NoError(t, os.Symlink(filepath.Join(share.Root, "target"), filepath.Join(share.Root, "link")))

	// Overwriting a link replaces the link itself; the tree it pointed
	// at stays.
	require.NoError(t, ops.Move(context.Background(), share, "new.txt", share, "link", true))
	assert.Equal(t, "incoming", readFile(t, share, "link"))
	assert.Equal(t, "keep me", readFile(t, share, "target/data.txt"))
}

func TestMoveIntoItself(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "dir/file.txt", "x")

	err := ops.Move(context.Background(), share, "dir", share, "dir/inner", false)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCopyRecursive(t *testing.T) {
	ops := New()
	src := testShare(t, "src")
	dst := testShare(t, "dst")
	ctx := context.Background()
	writeFile(t, src, "tree/a.txt", "a")
	writeFile(t, src, "tree/sub/b.txt", "b")
	writeFile(t, src, "tree/"+tempName(), "in progress")

	require.NoError(t, ops.Copy(ctx, src, "tree", dst, "tree", false))
	assert.Equal(t, "a", readFile(t, dst, "tree/a.txt"))
	assert.Equal(t, "b", readFile(t, dst, "tree/sub/b.txt"))

	// Source intact, temps not copied.
	assert.Equal(t, "a", readFile(t, src, "tree/a.txt"))
	entries, err := os.ReadDir(filepath.Join(dst.Root, "tree"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCopyPreservesSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "dir/real.txt", "content")
	require.NoError(t, os.Symlink("real.txt", filepath.Join(share.Root, "dir", "alias")))

	require.NoError(t, ops.Copy(context.Background(), share, "dir", share, "clone", false))

	info, err := os.Lstat(filepath.Join(share.Root, "clone", "alias"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink, "symlink copied as symlink")
	target, err := os.Readlink(filepath.Join(share.Root, "clone", "alias"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", target)
}

func TestCopyConflict(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	ctx := context.Background()
	writeFile(t, share, "a.txt", "a")
	writeFile(t, share, "b.txt", "b")

	require.ErrorIs(t, ops.Copy(ctx, share, "a.txt", share, "b.txt", false), ErrConflict)
	assert.Equal(t, "b", readFile(t, share, "b.txt"))

	require.NoError(t, ops.Copy(ctx, share, "a.txt", share, "b.txt", true))
	assert.Equal(t, "a", readFile(t, share, "b.txt"))
}

func TestCopyIntoReadonly(t *testing.T) {
	ops := New()
	src := testShare(t, "src")
	ro := testShare(t, "ro")
	ro.ReadOnly = true
	writeFile(t, src, "f.txt", "x")

	require.ErrorIs(t, ops.Copy(context.Background(), src, "f.txt", ro, "f.txt", false), ErrForbidden)
	entries, err := os.ReadDir(ro.Root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStat(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "f.txt", "xyz")

	info, err := ops.Stat(context.Background(), share, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	_, err = ops.Stat(context.Background(), share, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = ops.Stat(context.Background(), share, "../../etc")
	require.ErrorIs(t, err, resolve.ErrTraversal)
}

func TestVanishedShareRoot(t *testing.T) {
	ops := New()
	share := testShare(t, "files")
	writeFile(t, share, "f.txt", "x")
	require.NoError(t, os.RemoveAll(share.Root))
	ctx := context.Background()

	_, err := ops.Stat(ctx, share, "f.txt")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = ops.Download(ctx, share, "f.txt", io.Discard)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = ops.List(ctx, share, "")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, ops.Delete(ctx, share, "f.txt"), ErrNotFound)
}

// failingReader returns data for failAfter bytes and then errors.
type failingReader struct {
	failAfter int
	n         int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n >= f.failAfter {
		return 0, fmt.Errorf("simulated stream failure")
	}
	if len(p) > f.failAfter-f.n {
		p = p[:f.failAfter-f.n]
	}
	for i := range p {
		p[i] = 'x'
	}
	f.n += len(p)
	return len(p), nil
}
