//go:build windows

package destination

import "os"

// Drives lists the drive letters that currently have a mounted volume.
func Drives() []string {
	var drives []string
	for c := 'A'; c <= 'Z'; c++ {
		d := string(c) + ":"
		if _, err := os.Stat(d + `\`); err == nil {
			drives = append(drives, d)
		}
	}
	return drives
}
