// Package mqtt publishes controller state and accepts mode, parameter and
// relay commands over MQTT, with a fake for tests.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

const (
	modeNode = "operation-mode"

	StateReady = "ready"
	StateLost  = "lost"
)

var ErrUnknownTopic = errors.New("unknown command topic")

// Publisher publishes controller state to the broker.
type Publisher interface {
	// PublishStatus sends a retained status snapshot.
	PublishStatus(payload []byte) error

	// PublishRelay sends the retained on/off state of one relay.
	PublishRelay(id model.ActuatorID, on bool) error

	// PublishEvent sends an applied actuator edge (not retained).
	PublishEvent(event Event) error

	// PublishTemperature sends the retained value and validity of one sensor.
	PublishTemperature(id model.SensorID, r model.Reading) error

	// PublishContact sends the retained open state of one contact input.
	PublishContact(id string, open bool) error

	Close() error
}

// CommandHandler applies commands received on set topics.
type CommandHandler interface {
	SetMode(mode model.Mode) error
	Params() model.ControlParams
	SetParams(p model.ControlParams) error
	SetRelay(id model.ActuatorID, on bool) error
}

// Event is one applied actuator edge.
type Event struct {
	Timestamp time.Time
	CycleID   string
	Actuator  model.ActuatorID
	On        bool
	Mode      model.Mode
	Source    string
}

type EventPayload struct {
	Timestamp string `json:"timestamp"`
	CycleID   string `json:"cycle_id,omitempty"`
	Actuator  string `json:"actuator"`
	State     string `json:"state"`
	Mode      string `json:"mode"`
	Source    string `json:"source"`
}

func FormatEventPayload(e Event) ([]byte, error) {
	state := "OFF"
	if e.On {
		state = "ON"
	}
	return json.Marshal(EventPayload{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		CycleID:   e.CycleID,
		Actuator:  string(e.Actuator),
		State:     state,
		Mode:      string(e.Mode),
		Source:    e.Source,
	})
}

// Topics derives every topic from one prefix, e.g. homie/pool-controller.
type Topics struct {
	Prefix string
}

func (t Topics) State() string  { return t.Prefix + "/$state" }
func (t Topics) Status() string { return t.Prefix + "/status" }
func (t Topics) Events() string { return t.Prefix + "/events" }

func (t Topics) Relay(id model.ActuatorID) string {
	return fmt.Sprintf("%s/%s/on", t.Prefix, id)
}

func (t Topics) Temperature(id model.SensorID) string {
	return fmt.Sprintf("%s/%s-temperature/degrees", t.Prefix, id)
}

func (t Topics) TemperatureValid(id model.SensorID) string {
	return fmt.Sprintf("%s/%s-temperature/valid", t.Prefix, id)
}

func (t Topics) Contact(id string) string {
	return fmt.Sprintf("%s/%s/open", t.Prefix, id)
}

func (t Topics) ModeSet() string   { return fmt.Sprintf("%s/%s/mode/set", t.Prefix, modeNode) }
func (t Topics) ParamsSet() string { return fmt.Sprintf("%s/%s/params/set", t.Prefix, modeNode) }

// CommandFilter matches every set topic.
func (t Topics) CommandFilter() string { return t.Prefix + "/+/+/set" }

// HandleCommand routes one message from a set topic to h.
func HandleCommand(h CommandHandler, topics Topics, topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, topics.Prefix+"/")
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	value := strings.TrimSpace(string(payload))

	switch {
	case parts[0] == modeNode && parts[1] == "mode":
		return h.SetMode(model.Mode(value))

	case parts[0] == modeNode && parts[1] == "params":
		p := h.Params()
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: %v", model.ErrInvalidParams, err)
		}
		return h.SetParams(p)

	case parts[1] == "on":
		on, err := parseSwitch(value)
		if err != nil {
			return err
		}
		return h.SetRelay(model.ActuatorID(parts[0]), on)
	}

	return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid relay state %q", v)
	}
	return on, nil
}

func formatSwitch(on bool) []byte {
	return []byte(strconv.FormatBool(on))
}

func formatDegrees(v float64) []byte {
	return []byte(strconv.FormatFloat(v, 'f', 2, 64))
}
