package domain

import "time"

// ProcessContext is an immutable snapshot attached to every telemetry
// event; it is constructed once at startup and never mutated (spec §3
// "Process Context").
type ProcessContext struct {
	StartTime    time.Time
	Hostname     string
	Version      string
	PodNamespace string
}
