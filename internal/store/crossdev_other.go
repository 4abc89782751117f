//go:build !windows

package store

import (
	"errors"
	"syscall"
)

// isCrossDevice reports a link or rename that failed because the target
// directory lives on another filesystem.
func isCrossDevice(err error) bool { return errors.Is(err, syscall.EXDEV) }
