package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scans counts submitted payloads by entry path (scan, manual) and outcome.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "scans_total",
		Help:      "Scanned or manually entered payloads by outcome.",
	}, []string{"source", "outcome"})

	// Resolutions counts resolver results by status.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "resolutions_total",
		Help:      "Attendance resolutions by status and whether the store changed.",
	}, []string{"status", "changed"})

	// SuppressedFrames counts frames dropped by a scan source.
	SuppressedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "suppressed_frames_total",
		Help:      "Decoded frames dropped while paused or within the cooldown window.",
	}, []string{"reason"})

	// QueueEvents counts attendance events handled by the worker.
	QueueEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "queue_events_total",
		Help:      "Attendance events consumed by the worker by type and result.",
	}, []string{"type", "result"})
)
