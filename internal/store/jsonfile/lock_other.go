//go:build !unix

package jsonfile

import "os"

// Without flock the directory is only safe for writers in one process.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
