// Package rlimit raises the process's open-file-descriptor ceiling at
// startup. Every camera and viewer connection holds a socket file
// descriptor for the session's lifetime, so the default per-process limit
// on most distributions (1024) is exhausted well before any interesting
// session count.
package rlimit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RaiseNoFile sets RLIMIT_NOFILE's soft limit to want, capped at the
// kernel-enforced hard limit. It returns the soft limit actually in effect
// after the call.
func RaiseNoFile(want uint64) (uint64, error) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, fmt.Errorf("getrlimit: %w", err)
	}

	target := want
	if target > rlimit.Max {
		target = rlimit.Max
	}
	if rlimit.Cur >= target {
		return rlimit.Cur, nil
	}

	rlimit.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, fmt.Errorf("setrlimit to %d: %w", target, err)
	}
	return target, nil
}
