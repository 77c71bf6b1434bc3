// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scans counts processed scans by outcome: "IN", "OUT", or "invalid".
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quitescan_scans_total",
		Help: "Processed QR scans by result.",
	}, []string{"result"})

	// Registrations counts created students by origin: "self" or "admin".
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quitescan_registrations_total",
		Help: "Student registrations by origin.",
	}, []string{"origin"})

	// Decisions counts approval decisions: "approved" or "rejected".
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quitescan_registration_decisions_total",
		Help: "Registration approval decisions.",
	}, []string{"decision"})

	// QRRenders counts QR image render attempts by outcome: "ok" or "error".
	QRRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quitescan_qr_renders_total",
		Help: "QR image render attempts.",
	}, []string{"outcome"})
)
