package fileops

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNotFound is returned when the operation target does not exist.
	ErrNotFound = errors.New("no such file or directory")

	// ErrForbidden is returned for mutating operations on readonly
	// shares and for targets that must not be touched, like a share
	// root on Delete.
	ErrForbidden = errors.New("operation not permitted")

	// ErrConflict is returned when the destination already exists and
	// overwrite was not requested.
	ErrConflict = errors.New("destination already exists")
)

// mapOSError folds filesystem errors into the operation error taxonomy.
// Anything that does not map stays a wrapped I/O error.
func mapOSError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	default:
		return err
	}
}
