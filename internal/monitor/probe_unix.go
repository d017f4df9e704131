//go:build unix && !linux

package monitor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Getrusage has no current RSS, only the peak; ru_maxrss is bytes on darwin
// and kilobytes on the BSDs.
func platformReadProcess() (float64, uint64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, 0, err
	}
	cpu := float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6 +
		float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6
	rss := uint64(ru.Maxrss)
	if runtime.GOOS != "darwin" && runtime.GOOS != "ios" {
		rss *= 1024
	}
	return cpu, rss, nil
}
