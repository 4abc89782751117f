//go:build !windows

package destination

// Drives returns the filesystem root; non-Windows systems have no drive letters.
func Drives() []string { return []string{"/"} }
