package temperature

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// historySize bounds the raw readings kept per sensor for pattern checks.
const historySize = 10

type filterVerdict int

const (
	verdictAccepted filterVerdict = iota
	verdictRejected
	// verdictDisabled: this reading pushed the sensor over the anomaly limit.
	verdictDisabled
	// verdictRecovered: a disabled sensor has produced enough good readings.
	verdictRecovered
)

// spikeFilter rejects readings that jump too far from the last good value.
// The first maxAnomalies readings bootstrap the baseline; after that a
// sensor that keeps producing anomalies is disabled until it settles back
// near its last good value.
type spikeFilter struct {
	id           model.SensorID
	maxDelta     float64
	maxAnomalies int

	recent    []float64
	seen      int
	lastGood  float64
	anomalies int
	disabled  bool
	recovery  int
}

func newSpikeFilter(id model.SensorID, maxDelta float64, maxAnomalies int) *spikeFilter {
	if maxAnomalies < 1 {
		maxAnomalies = 1
	}
	return &spikeFilter{
		id:           id,
		maxDelta:     maxDelta,
		maxAnomalies: maxAnomalies,
		recent:       make([]float64, 0, historySize),
	}
}

func (f *spikeFilter) enabled() bool {
	return f.maxDelta > 0
}

func (f *spikeFilter) push(temp float64) {
	if len(f.recent) >= historySize {
		f.recent = f.recent[1:]
	}
	f.recent = append(f.recent, temp)
}

func (f *spikeFilter) process(temp float64) filterVerdict {
	if !f.enabled() {
		return verdictAccepted
	}
	f.push(temp)

	if f.seen < f.maxAnomalies {
		f.seen++
		f.lastGood = temp
		if f.seen == f.maxAnomalies {
			return f.analyzeBootstrap()
		}
		return verdictAccepted
	}

	delta := math.Abs(temp - f.lastGood)

	if f.disabled {
		if delta > f.maxDelta {
			f.recovery = 0
			return verdictRejected
		}
		f.recovery++
		if f.recovery < f.maxAnomalies {
			return verdictRejected
		}
		f.disabled = false
		f.anomalies = 0
		f.recovery = 0
		f.lastGood = temp
		return verdictRecovered
	}

	if delta <= f.maxDelta {
		f.anomalies = 0
		f.lastGood = temp
		return verdictAccepted
	}

	// a jump that holds steady is a new level, not a spike
	if f.anomalies >= 1 && f.stableAtNewLevel() {
		log.Info().
			Str("sensor", string(f.id)).
			Float64("temp", temp).
			Float64("previous", f.lastGood).
			Msg("Stable new baseline detected, accepting temperature")
		f.anomalies = 0
		f.lastGood = temp
		return verdictAccepted
	}

	f.anomalies++
	if f.anomalies >= f.maxAnomalies {
		f.disabled = true
		f.recovery = 0
		return verdictDisabled
	}
	return verdictRejected
}

// analyzeBootstrap picks the baseline from the bootstrap readings, ignoring
// outliers beyond two standard deviations. The verdict is for the newest
// reading.
func (f *spikeFilter) analyzeBootstrap() filterVerdict {
	mean, sd := meanStdDev(f.recent)
	outlier := func(t float64) bool {
		return math.Abs(t-mean) > 2*sd+0.5
	}

	f.anomalies = 0
	found := false
	for i := len(f.recent) - 1; i >= 0; i-- {
		if outlier(f.recent[i]) {
			f.anomalies++
		} else if !found {
			f.lastGood = f.recent[i]
			found = true
		}
	}
	if !found {
		f.lastGood = mean
	}

	if f.anomalies > 0 {
		log.Info().
			Str("sensor", string(f.id)).
			Int("anomalies_found", f.anomalies).
			Float64("baseline_temp", f.lastGood).
			Msg("Bootstrap analysis complete")
	}

	if outlier(f.recent[len(f.recent)-1]) {
		return verdictRejected
	}
	return verdictAccepted
}

func (f *spikeFilter) stableAtNewLevel() bool {
	const window = 3
	if len(f.recent) < window {
		return false
	}
	_, sd := meanStdDev(f.recent[len(f.recent)-window:])
	return sd < 2.0
}

func meanStdDev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
