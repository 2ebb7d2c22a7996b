// Package metrics exposes the Prometheus collectors of the bot and the HTTP
// server that serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "systembot_flows_total",
		Help: "Finished flows by flow name and outcome.",
	}, []string{"flow", "outcome"})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "systembot_commands_total",
		Help: "Handled commands and button presses by name and status.",
	}, []string{"command", "status"})

	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "systembot_active_subscriptions",
		Help: "Message listeners currently armed.",
	})
)

// ObserveFlow counts one finished flow.
func ObserveFlow(flow, outcome string) {
	flowsTotal.WithLabelValues(flow, outcome).Inc()
}

// ObserveCommand counts one handled command or button press.
func ObserveCommand(command, status string) {
	commandsTotal.WithLabelValues(command, status).Inc()
}

// SetActiveSubscriptions records the number of armed listeners.
func SetActiveSubscriptions(n int) {
	activeSubscriptions.Set(float64(n))
}
