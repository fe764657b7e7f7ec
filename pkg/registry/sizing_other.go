//go:build !unix

package registry

// MaxSupportedSockets falls back to a fixed default on non-Unix builds,
// where RLIMIT_NOFILE has no meaning (§3).
func MaxSupportedSockets() int {
	return defaultMaxSockets
}

const defaultMaxSockets = 1024
