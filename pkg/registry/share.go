package registry

import (
	"fmt"
	"strings"
)

// Share binds a name on the URL namespace to a filesystem root.
//
// A share is immutable once registered: changing any field means
// removing the share and adding it again. Requests that already hold a
// *Share when it is removed finish against the old value.
type Share struct {
	Name     string // first path segment on the wire
	Root     string // absolute filesystem path, file or directory
	Hidden   bool   // omitted from the share index, still reachable by name
	ReadOnly bool   // mutating operations are refused
	ListDir  bool   // directory contents may be listed
}

// validateName enforces the share naming rules. A name becomes a URL
// path segment, so it must not be empty, contain a separator, or be a
// relative-path component.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("share name is empty")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("share name %q is a relative path component", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("share name %q contains a path separator", name)
	}
	return nil
}
