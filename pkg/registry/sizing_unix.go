//go:build unix

package registry

import "golang.org/x/sys/unix"

// MaxSupportedSockets reads the process's soft RLIMIT_NOFILE, mirroring
// ov_mc_backend_registry_create's use of
// ov_socket_get_max_supported_runtime_sockets to size its slot array
// (§3). Falls back to defaultMaxSockets if the syscall fails.
func MaxSupportedSockets() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return defaultMaxSockets
	}
	if rlim.Cur <= 0 || rlim.Cur > 1<<20 {
		return defaultMaxSockets
	}
	return int(rlim.Cur)
}

const defaultMaxSockets = 1024
