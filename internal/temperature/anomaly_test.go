package temperature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

type filterScenario struct {
	name                 string
	readings             []float64
	expectedVerdicts     []filterVerdict
	expectedLastGood     float64
	expectedAnomalyCount int
	expectedDisabled     bool
}

func runFilterScenario(t *testing.T, sc filterScenario) {
	t.Helper()
	require.Len(t, sc.expectedVerdicts, len(sc.readings), "scenario %s is malformed", sc.name)

	f := newSpikeFilter(model.SensorPool, 10, 6)
	for i, temp := range sc.readings {
		assert.Equal(t, sc.expectedVerdicts[i], f.process(temp),
			"%s: reading %d (%.1f°F) verdict mismatch", sc.name, i, temp)
	}

	assert.InDelta(t, sc.expectedLastGood, f.lastGood, 0.1, "%s: last good temperature", sc.name)
	assert.Equal(t, sc.expectedAnomalyCount, f.anomalies, "%s: anomaly count", sc.name)
	assert.Equal(t, sc.expectedDisabled, f.disabled, "%s: disabled state", sc.name)
}

const (
	acc = verdictAccepted
	rej = verdictRejected
)

func TestNormalReadings(t *testing.T) {
	runFilterScenario(t, filterScenario{
		name:                 "gradual changes",
		readings:             []float64{78.0, 78.5, 79.0, 79.0, 79.5, 80.0, 80.5, 81.0},
		expectedVerdicts:     []filterVerdict{acc, acc, acc, acc, acc, acc, acc, acc},
		expectedLastGood:     81.0,
		expectedAnomalyCount: 0,
	})
}

func TestBootstrapBogusFirstReading(t *testing.T) {
	runFilterScenario(t, filterScenario{
		name:     "bogus first reading",
		readings: []float64{45.0, 67.0, 67.0, 68.0, 67.0, 66.0, 67.0},
		expectedVerdicts: []filterVerdict{
			acc, acc, acc, acc, acc, // bootstrap
			acc, // 6th reading: 45 found as outlier, baseline 66
			acc,
		},
		expectedLastGood:     67.0,
		expectedAnomalyCount: 0,
	})
}

func TestBootstrapBogusLastReading(t *testing.T) {
	runFilterScenario(t, filterScenario{
		name:     "bogus last bootstrap reading",
		readings: []float64{67.0, 68.0, 68.0, 68.0, 67.0, 45.0, 46.0},
		expectedVerdicts: []filterVerdict{
			acc, acc, acc, acc, acc,
			rej, // outlier completes the bootstrap
			rej, // still 21° off the baseline
		},
		expectedLastGood:     67.0,
		expectedAnomalyCount: 2,
	})
}

func TestSingleSpikeIsRejected(t *testing.T) {
	runFilterScenario(t, filterScenario{
		name:     "one CRC-valid spike on the pool probe",
		readings: []float64{78.0, 78.0, 78.5, 78.0, 78.5, 78.0, 120.0, 78.5},
		expectedVerdicts: []filterVerdict{
			acc, acc, acc, acc, acc, acc,
			rej,
			acc,
		},
		expectedLastGood:     78.5,
		expectedAnomalyCount: 0,
	})
}

func TestErraticSensorIsDisabled(t *testing.T) {
	runFilterScenario(t, filterScenario{
		name:     "erratic readings",
		readings: []float64{70.0, 71.0, 70.5, 71.0, 70.0, 71.5, 45.0, 95.0, 30.0, 110.0, 20.0, 120.0},
		expectedVerdicts: []filterVerdict{
			acc, acc, acc, acc, acc, acc,
			rej, rej, rej, rej, rej,
			verdictDisabled,
		},
		expectedLastGood:     71.5,
		expectedAnomalyCount: 6,
		expectedDisabled:     true,
	})
}

func TestDisabledSensorRecovers(t *testing.T) {
	runFilterScenario(t, filterScenario{
		name: "recovery near last good",
		readings: []float64{
			70.0, 71.0, 70.5, 71.0, 70.0, 71.5,
			45.0, 95.0, 30.0, 110.0, 20.0, 120.0,
			71.0, 71.0, 150.0, 71.0, 71.0, 71.0, 71.0, 71.0, 71.0,
		},
		expectedVerdicts: []filterVerdict{
			acc, acc, acc, acc, acc, acc,
			rej, rej, rej, rej, rej, verdictDisabled,
			rej, rej, rej, // a bad reading restarts the recovery count
			rej, rej, rej, rej, rej,
			verdictRecovered,
		},
		expectedLastGood:     71.0,
		expectedAnomalyCount: 0,
	})
}

func TestStableNewLevelIsAccepted(t *testing.T) {
	runFilterScenario(t, filterScenario{
		name: "collector cools when the pump starts",
		readings: []float64{
			140.0, 141.0, 140.0, 141.0, 140.5, 141.0,
			86.0, 85.0, 86.0, 85.5,
		},
		expectedVerdicts: []filterVerdict{
			acc, acc, acc, acc, acc, acc,
			rej, rej,
			acc, // three readings within 2°F of each other
			acc,
		},
		expectedLastGood:     85.5,
		expectedAnomalyCount: 0,
	})
}

func TestFilterDisabledByNonPositiveDelta(t *testing.T) {
	f := newSpikeFilter(model.SensorSolar, 0, 6)
	for _, temp := range []float64{70, 200, 10, 70} {
		assert.Equal(t, verdictAccepted, f.process(temp))
	}
}

func TestServiceMarksAnomalousReadingInvalid(t *testing.T) {
	c := &clock{t: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	pool := []step{}
	for i := 0; i < 6; i++ {
		pool = append(pool, step{temp: 78})
	}
	pool = append(pool, step{temp: 130}, step{temp: 78.5})

	reader := &scriptedReader{steps: map[string][]step{
		"pool":  pool,
		"solar": {{temp: 95}},
	}}
	svc := NewServiceForTest(
		map[model.SensorID]string{model.SensorPool: "pool", model.SensorSolar: "solar"},
		90*time.Second, 3,
		TestDeps{Read: reader.read, Now: c.now, MaxDelta: 10, MaxAnomalies: 6},
	)

	for i := 0; i < 6; i++ {
		svc.Poll()
	}
	require.True(t, svc.Reading(model.SensorPool).Valid)

	svc.Poll()
	r := svc.Reading(model.SensorPool)
	assert.False(t, r.Valid, "spike must never drive a decision")
	assert.Equal(t, 130.0, r.Value)

	svc.Poll()
	r = svc.Reading(model.SensorPool)
	assert.True(t, r.Valid)
	assert.Equal(t, 78.5, r.Value)
}

func TestServiceNotifiesOnDisableAndRecovery(t *testing.T) {
	c := &clock{t: time.Now()}
	seq := []float64{
		70, 71, 70.5, 71, 70, 71.5,
		45, 95, 30, 110, 20, 120,
		71, 71, 71, 71, 71, 71,
	}
	pool := make([]step, 0, len(seq))
	for _, v := range seq {
		pool = append(pool, step{temp: v})
	}
	reader := &scriptedReader{steps: map[string][]step{"pool": pool}}
	notifier := &MockNotifier{}
	svc := NewServiceForTest(
		map[model.SensorID]string{model.SensorPool: "pool"},
		time.Hour, 3,
		TestDeps{Read: reader.read, Notifier: notifier, Now: c.now, MaxDelta: 10, MaxAnomalies: 6},
	)

	for i := 0; i < 12; i++ {
		svc.Poll()
	}
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "Pool Sensor Failure: [pool sensor disabled] 120.0°F (6 anomalies, last good: 71.5°F)", notifier.calls[0])
	assert.False(t, svc.Reading(model.SensorPool).Valid)

	for i := 0; i < 6; i++ {
		svc.Poll()
	}
	require.Len(t, notifier.calls, 2)
	assert.Equal(t, "Pool Sensor Recovery: [pool sensor re-enabled] 71.0°F", notifier.calls[1])
	assert.True(t, svc.Reading(model.SensorPool).Valid)
}
