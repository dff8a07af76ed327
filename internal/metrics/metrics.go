// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	MeterAdmitted *prometheus.CounterVec
	MeterDenied   *prometheus.CounterVec
	Heartbeats    prometheus.Counter
	Activations   prometheus.Counter
	Redemptions   prometheus.Counter
	Revocations   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		MeterAdmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keyforge_meter_admitted_total",
			Help: "Metered calls admitted, by bucket.",
		}, []string{"bucket"}),
		MeterDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keyforge_meter_denied_total",
			Help: "Metered calls denied over quota, by bucket.",
		}, []string{"bucket"}),
		Heartbeats: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyforge_heartbeats_total",
			Help: "Accepted liveness signals.",
		}),
		Activations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyforge_activations_total",
			Help: "Completed device bindings.",
		}),
		Redemptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyforge_coupon_redemptions_total",
			Help: "Successful coupon redemptions.",
		}),
		Revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keyforge_license_revocations_total",
			Help: "License revocations.",
		}),
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
