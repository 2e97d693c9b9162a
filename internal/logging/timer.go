package logging

import (
	"fmt"
	"log/slog"
	"time"
)

// Timed logs the elapsed time of the enclosing scope. Use it as
//
//	defer logging.Timed(logger, "merge")()
//
// so the duration is reported on every return path.
func Timed(logger *slog.Logger, name string) func() {
	start := time.Now()
	return func() {
		logger.Info("Execution time", "function", name, "elapsed", FormatElapsed(time.Since(start)))
	}
}

// FormatElapsed renders d as "1h 02m 03s 000000004ns".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%dh %02dm %02ds %09dns", int64(h), int64(m), int64(s), d.Nanoseconds())
}
