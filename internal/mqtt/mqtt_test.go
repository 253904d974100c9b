package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

type recordingHandler struct {
	mode   model.Mode
	params model.ControlParams
	relays map[model.ActuatorID]bool
	err    error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		params: model.ControlParams{PoolMaxTemperature: 75.5, SolarMinTemperature: 100, Hysteresis: 1},
		relays: map[model.ActuatorID]bool{},
	}
}

func (h *recordingHandler) SetMode(m model.Mode) error {
	if h.err != nil {
		return h.err
	}
	h.mode = m
	return nil
}

func (h *recordingHandler) Params() model.ControlParams { return h.params }

func (h *recordingHandler) SetParams(p model.ControlParams) error {
	if h.err != nil {
		return h.err
	}
	h.params = p
	return nil
}

func (h *recordingHandler) SetRelay(id model.ActuatorID, on bool) error {
	if h.err != nil {
		return h.err
	}
	h.relays[id] = on
	return nil
}

var topics = Topics{Prefix: "homie/pool"}

func TestTopics(t *testing.T) {
	assert.Equal(t, "homie/pool/$state", topics.State())
	assert.Equal(t, "homie/pool/status", topics.Status())
	assert.Equal(t, "homie/pool/solar-pump/on", topics.Relay(model.SolarPump))
	assert.Equal(t, "homie/pool/operation-mode/mode/set", topics.ModeSet())
	assert.Equal(t, "homie/pool/operation-mode/params/set", topics.ParamsSet())
	assert.Equal(t, "homie/pool/+/+/set", topics.CommandFilter())
	assert.Equal(t, "homie/pool/pool-temperature/degrees", topics.Temperature(model.SensorPool))
	assert.Equal(t, "homie/pool/solar-temperature/valid", topics.TemperatureValid(model.SensorSolar))
	assert.Equal(t, "homie/pool/waterflow/open", topics.Contact("waterflow"))
}

func TestFormatDegrees(t *testing.T) {
	assert.Equal(t, "78.50", string(formatDegrees(78.5)))
	assert.Equal(t, "-3.25", string(formatDegrees(-3.25)))
}

func TestHandleModeCommand(t *testing.T) {
	h := newRecordingHandler()
	require.NoError(t, HandleCommand(h, topics, topics.ModeSet(), []byte(" auto\n")))
	assert.Equal(t, model.Mode("auto"), h.mode)
}

func TestHandleParamsCommandMergesPartial(t *testing.T) {
	h := newRecordingHandler()
	require.NoError(t, HandleCommand(h, topics, topics.ParamsSet(), []byte(`{"hysteresis": 2.5}`)))
	assert.Equal(t, 2.5, h.params.Hysteresis)
	assert.Equal(t, 75.5, h.params.PoolMaxTemperature)
}

func TestHandleParamsCommandBadJSON(t *testing.T) {
	h := newRecordingHandler()
	err := HandleCommand(h, topics, topics.ParamsSet(), []byte(`{`))
	assert.ErrorIs(t, err, model.ErrInvalidParams)
	assert.Equal(t, 1.0, h.params.Hysteresis)
}

func TestHandleRelayCommand(t *testing.T) {
	h := newRecordingHandler()
	for payload, want := range map[string]bool{"true": true, "false": false, "ON": true, "off": false, "1": true} {
		require.NoError(t, HandleCommand(h, topics, "homie/pool/pool-lights/on/set", []byte(payload)), payload)
		assert.Equal(t, want, h.relays[model.PoolLights], payload)
	}

	assert.Error(t, HandleCommand(h, topics, "homie/pool/pool-lights/on/set", []byte("maybe")))
}

func TestHandleUnknownTopics(t *testing.T) {
	h := newRecordingHandler()
	for _, topic := range []string{
		"other/pool/operation-mode/mode/set",
		"homie/pool/operation-mode/mode",
		"homie/pool/pool-lights/brightness/set",
		"homie/pool/a/b/c/set",
	} {
		assert.ErrorIs(t, HandleCommand(h, topics, topic, []byte("x")), ErrUnknownTopic, topic)
	}
}

func TestHandlerErrorPropagates(t *testing.T) {
	h := newRecordingHandler()
	h.err = errors.New("rejected")
	assert.EqualError(t, HandleCommand(h, topics, topics.ModeSet(), []byte("turbo")), "rejected")
}

func TestFormatEventPayload(t *testing.T) {
	payload, err := FormatEventPayload(Event{
		Timestamp: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		CycleID:   "c1",
		Actuator:  model.SolarPump,
		On:        true,
		Mode:      model.ModeAutomatic,
		Source:    "cycle",
	})
	require.NoError(t, err)

	var got EventPayload
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, EventPayload{
		Timestamp: "2024-07-01T12:00:00Z",
		CycleID:   "c1",
		Actuator:  "solar-pump",
		State:     "ON",
		Mode:      "auto",
		Source:    "cycle",
	}, got)
}

func TestFakePublisherDeliver(t *testing.T) {
	f := NewFakePublisher()
	h := newRecordingHandler()
	require.NoError(t, f.Subscribe(h))

	require.NoError(t, f.Deliver(topics, topics.ModeSet(), []byte("boost")))
	assert.Equal(t, model.Mode("boost"), h.mode)

	require.NoError(t, f.PublishContact("waterflow", true))
	open, ok := f.Contact("waterflow")
	assert.True(t, ok)
	assert.True(t, open)

	require.NoError(t, f.PublishTemperature(model.SensorPool, model.Reading{Value: 78, Valid: true}))
	r, ok := f.Temperature(model.SensorPool)
	assert.True(t, ok)
	assert.Equal(t, 78.0, r.Value)

	f.PublishError = errors.New("offline")
	assert.Error(t, f.PublishStatus([]byte("{}")))
	assert.Error(t, f.PublishContact("waterflow", false))
	assert.Nil(t, f.LastStatus())
}
