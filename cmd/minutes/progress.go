package main

import (
	"fmt"
	"io"
	"time"
)

// progress prints a running count of processed items. A zero total means the
// input length is unknown, as with stdin.
type progress struct {
	writer         io.Writer
	unit           string
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	now            func() time.Time
}

func newProgress(w io.Writer, unit string, total, reportInterval int) *progress {
	if reportInterval < 1 {
		reportInterval = 1
	}
	p := &progress{
		writer:         w,
		unit:           unit,
		total:          total,
		reportInterval: reportInterval,
		now:            time.Now,
	}
	p.startTime = p.now()
	return p
}

// Add records delta more items and reports when an interval is crossed.
func (p *progress) Add(delta int) {
	p.current += delta
	if p.total > 0 && p.current > p.total {
		p.current = p.total
	}
	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Finish prints the final count followed by a newline.
func (p *progress) Finish() {
	if p.total > 0 {
		p.current = p.total
	}
	p.report()
	fmt.Fprintln(p.writer)
}

func (p *progress) report() {
	rate := 0.0
	if elapsed := p.now().Sub(p.startTime).Seconds(); elapsed > 0 {
		rate = float64(p.current) / elapsed
	}
	if p.total > 0 {
		pct := float64(p.current) / float64(p.total) * 100.0
		fmt.Fprintf(p.writer, "\rProgress: %d/%d %s (%.1f%%) - %.1f %s/s",
			p.current, p.total, p.unit, pct, rate, p.unit)
		return
	}
	fmt.Fprintf(p.writer, "\rProgress: %d %s - %.1f %s/s", p.current, p.unit, rate, p.unit)
}
