package sniffer

import "imgsniff/pkg/logger"

// tracker forwards progress, clamped to [0, 1] and never decreasing
type tracker struct {
	fn     ProgressFunc
	logger logger.Logger
	target string
	last   float64
}

func newTracker(fn ProgressFunc, log logger.Logger, target string) *tracker {
	return &tracker{fn: fn, logger: log, target: target}
}

func (t *tracker) update(message string, fraction float64) {
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	if fraction < t.last {
		fraction = t.last
	}
	t.last = fraction

	logger.LogSniffProgress(t.logger, t.target, message, fraction)
	if t.fn != nil {
		t.fn(message, fraction)
	}
}
