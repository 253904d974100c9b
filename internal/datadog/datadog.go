package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/env"
)

var dogstatsd statsd.ClientInterface

func InitMetrics() {
	if !env.Cfg.EnableDatadog {
		log.Info().Msg("Datadog metrics disabled")
		return
	}

	client, err := statsd.New(env.Cfg.DDAgentAddr,
		statsd.WithNamespace(env.Cfg.DDNamespace),
		statsd.WithTags(env.Cfg.DDTags),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}
	dogstatsd = client

	log.Info().
		Str("addr", env.Cfg.DDAgentAddr).
		Str("namespace", env.Cfg.DDNamespace).
		Strs("tags", env.Cfg.DDTags).
		Msg("Datadog metrics initialized")
}

// SetClient replaces the statsd client; tests pass a recorder.
func SetClient(c statsd.ClientInterface) {
	dogstatsd = c
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

// BoolGauge emits 1 for true and 0 for false.
func BoolGauge(name string, on bool, tags ...string) {
	v := 0.0
	if on {
		v = 1.0
	}
	Gauge(name, v, tags...)
}

func Close() {
	if dogstatsd != nil {
		dogstatsd.Close()
	}
}
