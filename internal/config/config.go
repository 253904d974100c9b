package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pool-controller/internal/model"
)

type RelayPin struct {
	Pin        int  `json:"pin"`
	ActiveHigh bool `json:"active_high"`
}

type Sensor struct {
	// Bus is the 1-Wire device directory name, e.g. 28-3c01d607a2b1
	Bus string `json:"bus"`
}

type Contact struct {
	// Pin is read with the internal pull-up; a high level means open.
	Pin int `json:"pin"`
}

type Timer struct {
	StartHour   int `json:"start_hour"`
	StartMinute int `json:"start_minute"`
	EndHour     int `json:"end_hour"`
	EndMinute   int `json:"end_minute"`
}

type Defaults struct {
	OperationMode       string  `json:"operation_mode"`
	PoolMaxTemperature  float64 `json:"pool_max_temperature"`
	SolarMinTemperature float64 `json:"solar_min_temperature"`
	Hysteresis          float64 `json:"hysteresis"`
	Timer               Timer   `json:"timer"`
}

type MQTT struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level

	LogFile string `json:"log_file"`
	DBPath  string `json:"db_path"`

	PollIntervalSeconds  int  `json:"poll_interval_seconds"`
	SensorStaleSeconds   int  `json:"sensor_stale_seconds"`
	SensorMaxFailures    int  `json:"sensor_max_failures"`
	HistoryRetentionDays int  `json:"history_retention_days"`
	SafeMode             bool `json:"safe_mode"`

	// AnomalyMaxDelta is the largest accepted jump (°F) from the last good
	// reading; negative disables the spike filter.
	AnomalyMaxDelta float64 `json:"anomaly_max_delta"`
	AnomalyMaxCount int     `json:"anomaly_max_count"`

	RelayDriver   string              `json:"relay_driver"` // gpiocdev or pinctrl
	GPIOChip      string              `json:"gpio_chip"`
	Relays        map[string]RelayPin `json:"relays"`
	W1DevicesPath string              `json:"w1_devices_path"`
	Sensors       map[string]Sensor   `json:"sensors"`

	Contacts          map[string]Contact `json:"contacts"`
	ContactDebounceMs int                `json:"contact_debounce_ms"`
	ContactPollMs     int                `json:"contact_poll_ms"`

	Defaults Defaults `json:"defaults"`

	APIPort int  `json:"api_port"`
	MQTT    MQTT `json:"mqtt"`

	NtfyTopic  string `json:"ntfy_topic"`
	NtfyServer string `json:"ntfy_server"`

	// NtfyCooldownMinutes suppresses repeats of the same alert title.
	NtfyCooldownMinutes int `json:"ntfy_cooldown_minutes"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	BootScriptFilePath string `json:"boot_script_file_path"`
	OSServicePath      string `json:"os_service_path"`
	MainServicePath    string `json:"main_service_path"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := cfg.decode(file); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.validate()
	return cfg
}

// LoadFile reads and validates a config without touching the command line.
func LoadFile(path string) (Config, error) {
	cfg := Config{ConfigFile: path, LogLevel: zerolog.InfoLevel}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config file: %w", err)
	}
	defer file.Close()

	if err := cfg.decode(file); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.check(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) decode(r io.Reader) error {
	cfg.Defaults = Defaults{
		OperationMode:       string(model.ModeManual),
		PoolMaxTemperature:  75.5,
		SolarMinTemperature: 100.0,
		Hysteresis:          1.0,
		Timer:               Timer{StartHour: 10, StartMinute: 30, EndHour: 17, EndMinute: 30},
	}

	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return err
	}
	cfg.applyDefaults()
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 30
	}
	if cfg.SensorStaleSeconds == 0 {
		cfg.SensorStaleSeconds = 3 * cfg.PollIntervalSeconds
	}
	if cfg.SensorMaxFailures == 0 {
		cfg.SensorMaxFailures = 5
	}
	if cfg.AnomalyMaxDelta == 0 {
		cfg.AnomalyMaxDelta = 10
	}
	if cfg.AnomalyMaxCount == 0 {
		cfg.AnomalyMaxCount = 6
	}
	if cfg.ContactDebounceMs == 0 {
		cfg.ContactDebounceMs = 200
	}
	if cfg.ContactPollMs == 0 {
		cfg.ContactPollMs = 100
	}
	if cfg.HistoryRetentionDays == 0 {
		cfg.HistoryRetentionDays = 30
	}
	if cfg.RelayDriver == "" {
		cfg.RelayDriver = "gpiocdev"
	}
	if cfg.GPIOChip == "" {
		cfg.GPIOChip = "gpiochip0"
	}
	if cfg.W1DevicesPath == "" {
		cfg.W1DevicesPath = "/sys/bus/w1/devices"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/pool.db"
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "/var/log/pool-controller.log"
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if cfg.NtfyServer == "" {
		cfg.NtfyServer = "https://ntfy.sh"
	}
	if cfg.NtfyCooldownMinutes == 0 {
		cfg.NtfyCooldownMinutes = 10
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "pool-controller"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "homie/pool-controller"
	}
	if cfg.BootScriptFilePath == "" {
		cfg.BootScriptFilePath = "/usr/local/bin/pool-gpio-init.sh"
	}
	if cfg.OSServicePath == "" {
		cfg.OSServicePath = "/etc/systemd/system/pool-gpio-init.service"
	}
	if cfg.MainServicePath == "" {
		cfg.MainServicePath = "/etc/systemd/system/pool-controller.service"
	}
}

func (cfg Config) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalSeconds) * time.Second
}

func (cfg Config) SensorStaleAfter() time.Duration {
	return time.Duration(cfg.SensorStaleSeconds) * time.Second
}

func (cfg Config) ContactDebounce() time.Duration {
	return time.Duration(cfg.ContactDebounceMs) * time.Millisecond
}

func (cfg Config) ContactPollInterval() time.Duration {
	return time.Duration(cfg.ContactPollMs) * time.Millisecond
}

// InitialMode and InitialParams are the seed values for the settings table.
func (cfg Config) InitialMode() (model.Mode, error) {
	return model.ParseMode(cfg.Defaults.OperationMode)
}

func (cfg Config) InitialParams() model.ControlParams {
	d := cfg.Defaults
	return model.ControlParams{
		PoolMaxTemperature:  d.PoolMaxTemperature,
		SolarMinTemperature: d.SolarMinTemperature,
		Hysteresis:          d.Hysteresis,
		Timer: model.TimerWindow{
			Start: model.TimeOfDay{Hour: d.Timer.StartHour, Minute: d.Timer.StartMinute},
			End:   model.TimeOfDay{Hour: d.Timer.EndHour, Minute: d.Timer.EndMinute},
		},
	}
}

// RelayNames returns configured relay ids in sorted order.
func (cfg Config) RelayNames() []string {
	names := make([]string, 0, len(cfg.Relays))
	for name := range cfg.Relays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	if err := cfg.check(); err != nil {
		panic(err.Error())
	}
}

func (cfg *Config) check() error {
	var (
		problems []string
		usedPins = map[int]string{}
	)

	if cfg.PollIntervalSeconds < 1 || cfg.PollIntervalSeconds > 300 {
		problems = append(problems, fmt.Sprintf("poll_interval_seconds %d outside [1, 300]", cfg.PollIntervalSeconds))
	}
	if cfg.RelayDriver != "gpiocdev" && cfg.RelayDriver != "pinctrl" {
		problems = append(problems, fmt.Sprintf("unknown relay_driver %q", cfg.RelayDriver))
	}

	for _, required := range model.CirculationActuators {
		if _, ok := cfg.Relays[string(required)]; !ok {
			problems = append(problems, "missing relay "+string(required))
		}
	}
	for _, name := range cfg.RelayNames() {
		pin := cfg.Relays[name].Pin
		if other, exists := usedPins[pin]; exists {
			problems = append(problems, fmt.Sprintf("relays.%s and %s both use pin %d", name, other, pin))
		} else {
			usedPins[pin] = "relays." + name
		}
	}

	contacts := make([]string, 0, len(cfg.Contacts))
	for name := range cfg.Contacts {
		contacts = append(contacts, name)
	}
	sort.Strings(contacts)
	for _, name := range contacts {
		pin := cfg.Contacts[name].Pin
		if other, exists := usedPins[pin]; exists {
			problems = append(problems, fmt.Sprintf("contacts.%s and %s both use pin %d", name, other, pin))
		} else {
			usedPins[pin] = "contacts." + name
		}
	}
	if cfg.AnomalyMaxCount < 1 {
		problems = append(problems, fmt.Sprintf("anomaly_max_count %d must be positive", cfg.AnomalyMaxCount))
	}

	for _, required := range []model.SensorID{model.SensorPool, model.SensorSolar} {
		s, ok := cfg.Sensors[string(required)]
		if !ok || s.Bus == "" {
			problems = append(problems, "missing sensor "+string(required))
		}
	}

	if _, err := cfg.InitialMode(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := cfg.InitialParams().Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
