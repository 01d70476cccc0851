// Package resolve maps user-supplied request paths onto absolute
// filesystem paths confined to a share root.
package resolve

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrTraversal is returned when a request path would escape its share
// root. Handlers must not echo the offending path back to the client.
var ErrTraversal = errors.New("path escapes share root")

// Clean validates a slash-separated request path and returns it as a
// relative path with no leading or trailing slash. The empty string
// means the share root itself.
//
// A single leading slash (the URL form) and a single trailing slash
// (the directory form) are stripped. Anything else that could change
// the meaning of the path is rejected: empty segments, "." and ".."
// segments, NUL bytes, and backslashes.
func Clean(rel string) (string, error) {
	if strings.ContainsAny(rel, "\x00\\") {
		return "", ErrTraversal
	}
	rel = strings.TrimPrefix(rel, "/")
	rel = strings.TrimSuffix(rel, "/")
	if rel == "" {
		return "", nil
	}
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".", "..":
			return "", ErrTraversal
		}
	}
	return rel, nil
}

// Resolve joins rel onto root and returns the absolute filesystem path
// the request refers to, verifying that the canonical result stays
// under the canonical root.
//
// Symlinks are followed: the deepest existing ancestor of the target is
// canonicalized, so a link anywhere in the stored tree that points
// outside the root yields ErrTraversal. Components that do not exist
// yet are allowed (upload and mkdir targets); the caller gets the
// filesystem's not-found error when it touches the path.
func Resolve(root, rel string) (string, error) {
	rel, err := Clean(rel)
	if err != nil {
		return "", err
	}

	canonRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return canonRoot, nil
	}

	target := filepath.Join(canonRoot, filepath.FromSlash(rel))
	canon, err := canonicalize(target)
	if err != nil {
		return "", err
	}
	if !within(canonRoot, canon) {
		return "", ErrTraversal
	}
	return canon, nil
}

// ResolveNoFollow is like Resolve except that a symlink in the final
// component is not followed: the parent directory is canonicalized and
// containment-checked, then the last segment is joined back untouched.
// Mutating operations address a link through this so they act on the
// link itself rather than on its target.
func ResolveNoFollow(root, rel string) (string, error) {
	rel, err := Clean(rel)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return filepath.EvalSymlinks(root)
	}

	parent := path.Dir(rel)
	if parent == "." {
		parent = ""
	}
	absParent, err := Resolve(root, parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(absParent, path.Base(rel)), nil
}

// canonicalize resolves symlinks in the deepest existing ancestor of p
// and rejoins the missing suffix onto the resolved prefix.
func canonicalize(p string) (string, error) {
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		missing = append(missing, filepath.Base(p))
		p = parent
	}
}

// within reports whether p equals root or sits strictly under it. The
// separator check keeps sibling prefixes apart ("/srv/share" must not
// admit "/srv/share2").
func within(root, p string) bool {
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
