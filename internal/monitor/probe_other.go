//go:build !unix

package monitor

import "runtime"

// Without a process accounting API only the Go heap is visible.
func platformReadProcess() (float64, uint64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return 0, ms.Sys, nil
}
