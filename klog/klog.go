// Package klog provides gated diagnostic counters and printf helpers,
// mirroring biscuit's stats package: counters are no-ops unless
// Enabled is flipped on, so hot paths pay only a flag check for
// instrumentation by default.
package klog

import (
	"fmt"
	"sync/atomic"
)

// Enabled turns on counter accounting and verbose trace printing.
var Enabled = false

// Counter is a monotonically increasing diagnostic counter.
type Counter struct{ n int64 }

// Inc bumps the counter by one when klog is enabled.
func (c *Counter) Inc() {
	if Enabled {
		atomic.AddInt64(&c.n, 1)
	}
}

// Load returns the counter's current value.
func (c *Counter) Load() int64 { return atomic.LoadInt64(&c.n) }

// Tracef prints a diagnostic line when klog is enabled.
func Tracef(format string, args ...interface{}) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}
