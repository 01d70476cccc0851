// Package fileops implements the filesystem operations behind the HTTP
// surface: listing, download, upload, and the mutating verbs.
//
// Every operation takes a *registry.Share and a request-relative path,
// resolves it inside the share root, and maps filesystem failures into
// a small error taxonomy the transport layer can translate to status
// codes. Mutating operations serialize per resolved path through an
// in-process lock manager; reads take no locks.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoshare/internal/telemetry"
	"github.com/marmos91/dittoshare/pkg/bufpool"
	"github.com/marmos91/dittoshare/pkg/registry"
	"github.com/marmos91/dittoshare/pkg/resolve"
)

const (
	tempPrefix = ".dittoshare-"
	tempSuffix = ".tmp"
)

// tempName returns a fresh in-progress upload name. The uuid keeps
// concurrent uploads to the same target from colliding on the temp.
func tempName() string {
	return tempPrefix + uuid.NewString() + tempSuffix
}

// IsTempName reports whether name is an in-progress upload temp file.
// Listings and recursive copies skip these.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempSuffix)
}

// copyBuffered streams src into dst through a pooled transfer buffer.
func copyBuffered(dst io.Writer, src io.Reader) (int64, error) {
	buf := bufpool.Get(bufpool.DefaultLargeSize)
	defer bufpool.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

// Entry describes one directory member in a listing.
type Entry struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	IsDir     bool      `json:"is_dir"`
	IsSymlink bool      `json:"is_symlink"`
}

// Operations executes filesystem operations against share roots.
// A single value is shared by all requests; the zero value is not
// usable, construct with New.
type Operations struct {
	locks *pathLocks
}

// New creates an Operations value with an empty lock table.
func New() *Operations {
	return &Operations{locks: newPathLocks()}
}

// Stat resolves rel inside the share and stats it, following symlinks.
func (o *Operations) Stat(ctx context.Context, share *registry.Share, rel string) (fs.FileInfo, error) {
	ctx, span := telemetry.StartFSSpan(ctx, "stat", telemetry.Path(rel))
	defer span.End()

	abs, err := resolve.Resolve(share.Root, rel)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, mapOSError(err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, mapOSError(err)
	}
	return info, nil
}

// List returns the members of the directory at rel, sorted by name.
// In-progress upload temp files are skipped. When the share has
// ListDir disabled the directory still resolves but its contents are
// withheld and the listing comes back empty.
func (o *Operations) List(ctx context.Context, share *registry.Share, rel string) ([]Entry, error) {
	abs, err := resolve.Resolve(share.Root, rel)
	if err != nil {
		return nil, mapOSError(err)
	}

	if !share.ListDir {
		if _, err := os.Stat(abs); err != nil {
			return nil, mapOSError(err)
		}
		return []Entry{}, nil
	}

	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, mapOSError(err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if IsTempName(d.Name()) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// Entry vanished between ReadDir and Lstat.
			continue
		}
		entry := Entry{
			Name:      d.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			IsDir:     d.IsDir(),
			IsSymlink: d.Type()&fs.ModeSymlink != 0,
		}
		if entry.IsSymlink {
			// Listings follow links so a link to a directory browses
			// like a directory. Broken links keep the Lstat values.
			if target, err := os.Stat(filepath.Join(abs, d.Name())); err == nil {
				entry.IsDir = target.IsDir()
				entry.Size = target.Size()
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Download streams the file at rel into w and returns the byte count.
func (o *Operations) Download(ctx context.Context, share *registry.Share, rel string, w io.Writer) (int64, error) {
	abs, err := resolve.Resolve(share.Root, rel)
	if err != nil {
		return 0, mapOSError(err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return 0, mapOSError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, mapOSError(err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %q is a directory", ErrNotFound, path.Base(rel))
	}

	n, err := copyBuffered(w, &contextReader{ctx: ctx, r: f})
	if err != nil {
		return n, fmt.Errorf("stream download: %w", err)
	}
	return n, nil
}

// Upload writes the stream r to rel. The bytes land in a temp file in
// the target directory, are fsynced, and only then renamed over the
// final name, so readers never observe a partial file. On any failure
// or context cancellation the temp is removed and the target keeps its
// previous content.
func (o *Operations) Upload(ctx context.Context, share *registry.Share, rel string, r io.Reader) (int64, error) {
	if share.ReadOnly {
		return 0, fmt.Errorf("%w: share %q is readonly", ErrForbidden, share.Name)
	}
	clean, err := resolve.Clean(rel)
	if err != nil {
		return 0, err
	}
	if clean == "" {
		return 0, fmt.Errorf("%w: cannot upload over the share root", ErrForbidden)
	}

	abs, err := resolve.Resolve(share.Root, rel)
	if err != nil {
		return 0, mapOSError(err)
	}

	unlock := o.locks.lock(abs)
	defer unlock()

	if info, err := os.Lstat(abs); err == nil && info.IsDir() {
		return 0, fmt.Errorf("%w: %q is a directory", ErrConflict, path.Base(clean))
	}

	tmp := filepath.Join(filepath.Dir(abs), tempName())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, mapOSError(err)
	}

	written, err := copyBuffered(f, &contextReader{ctx: ctx, r: r})
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("write upload: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("sync upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return 0, mapOSError(err)
	}
	return written, nil
}

// Mkdir creates the directory at rel. The parent must exist.
func (o *Operations) Mkdir(ctx context.Context, share *registry.Share, rel string) error {
	if share.ReadOnly {
		return fmt.Errorf("%w: share %q is readonly", ErrForbidden, share.Name)
	}
	abs, err := resolve.Resolve(share.Root, rel)
	if err != nil {
		return mapOSError(err)
	}

	unlock := o.locks.lock(abs)
	defer unlock()

	if err := os.Mkdir(abs, 0o755); err != nil {
		return mapOSError(err)
	}
	return nil
}

// Delete removes the file or directory at rel. Directories are removed
// recursively; symlinks are unlinked, never followed. The share root
// itself cannot be deleted.
func (o *Operations) Delete(ctx context.Context, share *registry.Share, rel string) error {
	if share.ReadOnly {
		return fmt.Errorf("%w: share %q is readonly", ErrForbidden, share.Name)
	}
	clean, err := resolve.Clean(rel)
	if err != nil {
		return err
	}
	if clean == "" {
		return fmt.Errorf("%w: cannot delete the share root", ErrForbidden)
	}

	// A symlink target must survive a delete of the link, so the final
	// component stays unresolved.
	abs, err := resolve.ResolveNoFollow(share.Root, rel)
	if err != nil {
		return mapOSError(err)
	}

	unlock := o.locks.lock(abs)
	defer unlock()

	info, err := os.Lstat(abs)
	if err != nil {
		return mapOSError(err)
	}
	if info.IsDir() {
		if err := os.RemoveAll(abs); err != nil {
			return mapOSError(err)
		}
		return nil
	}
	if err := os.Remove(abs); err != nil {
		return mapOSError(err)
	}
	return nil
}

// Rename gives the entry from in directory dir the new name to, inside
// the same directory. The new name must be a single path segment.
// Returns ErrConflict if an entry with the new name already exists.
func (o *Operations) Rename(ctx context.Context, share *registry.Share, dir, from, to string) error {
	if share.ReadOnly {
		return fmt.Errorf("%w: share %q is readonly", ErrForbidden, share.Name)
	}
	if !validSegment(from) || !validSegment(to) {
		return resolve.ErrTraversal
	}

	absSrc, err := resolve.ResolveNoFollow(share.Root, path.Join(dir, from))
	if err != nil {
		return mapOSError(err)
	}
	absDst, err := resolve.ResolveNoFollow(share.Root, path.Join(dir, to))
	if err != nil {
		return mapOSError(err)
	}
	if absSrc == absDst {
		return nil
	}

	unlock := o.locks.lockPair(absSrc, absDst)
	defer unlock()

	if _, err := os.Lstat(absSrc); err != nil {
		return mapOSError(err)
	}
	if _, err := os.Lstat(absDst); err == nil {
		return fmt.Errorf("%w: %q", ErrConflict, to)
	}
	if err := os.Rename(absSrc, absDst); err != nil {
		return mapOSError(err)
	}
	return nil
}

// Move relocates src in srcShare to dst in dstShare. Within one
// filesystem this is a single rename; across filesystems it falls back
// to a recursive copy followed by removal of the source. Both shares
// must be writable, since a move mutates each side.
func (o *Operations) Move(ctx context.Context, srcShare *registry.Share, src string, dstShare *registry.Share, dst string, overwrite bool) error {
	if srcShare.ReadOnly {
		return fmt.Errorf("%w: share %q is readonly", ErrForbidden, srcShare.Name)
	}
	cleanSrc, err := resolve.Clean(src)
	if err != nil {
		return err
	}
	if cleanSrc == "" {
		return fmt.Errorf("%w: cannot move the share root", ErrForbidden)
	}
	absSrc, absDst, unlock, err := o.preparePair(srcShare, src, dstShare, dst, overwrite)
	if err != nil {
		return err
	}
	defer unlock()

	err = os.Rename(absSrc, absDst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return mapOSError(err)
	}

	// Cross-device fallback: copy then remove.
	ctx, span := telemetry.StartFSSpan(ctx, "copy")
	defer span.End()
	if err := copyPath(ctx, absSrc, absDst); err != nil {
		return err
	}
	if err := os.RemoveAll(absSrc); err != nil {
		return mapOSError(err)
	}
	return nil
}

// Copy duplicates src in srcShare to dst in dstShare. Directories are
// copied recursively; symlinks are recreated as symlinks, never
// followed.
func (o *Operations) Copy(ctx context.Context, srcShare *registry.Share, src string, dstShare *registry.Share, dst string, overwrite bool) error {
	absSrc, absDst, unlock, err := o.preparePair(srcShare, src, dstShare, dst, overwrite)
	if err != nil {
		return err
	}
	defer unlock()

	ctx, span := telemetry.StartFSSpan(ctx, "copy")
	defer span.End()
	return copyPath(ctx, absSrc, absDst)
}

// preparePair resolves both ends of a two-path operation, validates
// the source exists and the destination slot is free (or cleared when
// overwrite is set), and returns the held pair lock. Conflict and
// Forbidden surface before anything on disk changes.
func (o *Operations) preparePair(srcShare *registry.Share, src string, dstShare *registry.Share, dst string, overwrite bool) (absSrc, absDst string, unlock func(), err error) {
	if dstShare.ReadOnly {
		return "", "", nil, fmt.Errorf("%w: share %q is readonly", ErrForbidden, dstShare.Name)
	}
	cleanDst, err := resolve.Clean(dst)
	if err != nil {
		return "", "", nil, err
	}
	if cleanDst == "" {
		return "", "", nil, fmt.Errorf("%w: destination is the share root", ErrConflict)
	}

	absSrc, err = resolve.ResolveNoFollow(srcShare.Root, src)
	if err != nil {
		return "", "", nil, mapOSError(err)
	}
	absDst, err = resolve.ResolveNoFollow(dstShare.Root, dst)
	if err != nil {
		return "", "", nil, mapOSError(err)
	}
	if absSrc == absDst {
		return "", "", nil, fmt.Errorf("%w: source and destination are the same", ErrConflict)
	}
	if strings.HasPrefix(absDst, absSrc+string(filepath.Separator)) {
		return "", "", nil, fmt.Errorf("%w: destination is inside the source", ErrConflict)
	}

	unlock = o.locks.lockPair(absSrc, absDst)

	if _, err := os.Lstat(absSrc); err != nil {
		unlock()
		return "", "", nil, mapOSError(err)
	}
	if _, err := os.Lstat(absDst); err == nil {
		if !overwrite {
			unlock()
			return "", "", nil, fmt.Errorf("%w: %q", ErrConflict, path.Base(cleanDst))
		}
		if err := os.RemoveAll(absDst); err != nil {
			unlock()
			return "", "", nil, mapOSError(err)
		}
	}
	return absSrc, absDst, unlock, nil
}

// copyPath duplicates src to dst. In-progress upload temps inside
// copied directories are skipped.
func copyPath(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Lstat(src)
	if err != nil {
		return mapOSError(err)
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return mapOSError(err)
		}
		if err := os.Symlink(target, dst); err != nil {
			return mapOSError(err)
		}
		return nil

	case info.IsDir():
		if err := os.Mkdir(dst, info.Mode().Perm()); err != nil {
			return mapOSError(err)
		}
		dirents, err := os.ReadDir(src)
		if err != nil {
			return mapOSError(err)
		}
		for _, d := range dirents {
			if IsTempName(d.Name()) {
				continue
			}
			if err := copyPath(ctx, filepath.Join(src, d.Name()), filepath.Join(dst, d.Name())); err != nil {
				return err
			}
		}
		return nil

	default:
		return copyFile(ctx, src, dst, info.Mode().Perm())
	}
}

func copyFile(ctx context.Context, src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return mapOSError(err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return mapOSError(err)
	}
	if _, err := copyBuffered(out, &contextReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy %q: %w", filepath.Base(dst), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("copy %q: %w", filepath.Base(dst), err)
	}
	return nil
}

// validSegment reports whether name is usable as a single directory
// entry name.
func validSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// isCrossDevice reports whether a rename failed because source and
// destination live on different filesystems.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV)
}

// contextReader fails the read as soon as the request context is done,
// so a cancelled upload or copy stops mid-stream instead of running to
// completion.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
