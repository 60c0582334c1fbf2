package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Config holds everything the controller needs to talk to the robot, the
// policy service and the optional observers.  Intervals are plain
// milliseconds in the file.  All fields have workable defaults so an empty
// (or missing) file still gives a runnable setup against a robot on the
// default AP address.
type Config struct {
	// Robot onboard HTTP controller.
	DeviceBaseURL   string `yaml:"deviceBaseURL"`
	DeviceTimeoutMS int    `yaml:"deviceTimeoutMS"`

	// Remote policy service.
	PolicyURL       string `yaml:"policyURL"`
	PolicyTimeoutMS int    `yaml:"policyTimeoutMS"`

	// Sync loop tick intervals per control mode.
	ManualTickMS int `yaml:"manualTickMS"`
	AutoTickMS   int `yaml:"autoTickMS"`

	// Gyro bias calibration.
	CalibrationSamples   int `yaml:"calibrationSamples"`
	CalibrationSpacingMS int `yaml:"calibrationSpacingMS"`

	// Optional MQTT mirror of the sync payloads.  Disabled when the
	// broker is left empty.
	MQTTBroker     string `yaml:"mqttBroker"`
	MQTTClientID   string `yaml:"mqttClientID"`
	TopicPayload   string `yaml:"topicPayload"`
	TopicForcedOps string `yaml:"topicForcedOps"`

	// State feed for the display layer.  Disabled when empty.
	StateFeedAddr       string `yaml:"stateFeedAddr"`
	StateFeedIntervalMS int    `yaml:"stateFeedIntervalMS"`
}

func Default() Config {
	return Config{
		DeviceBaseURL:        "http://192.168.4.1",
		DeviceTimeoutMS:      2000,
		PolicyURL:            "http://localhost:5000/decide",
		PolicyTimeoutMS:      3000,
		ManualTickMS:         500,
		AutoTickMS:           200,
		CalibrationSamples:   20,
		CalibrationSpacingMS: 100,
		MQTTClientID:         "skidbot-controller",
		TopicPayload:         "skidbot/sync",
		TopicForcedOps:       "skidbot/forced-stop",
		StateFeedAddr:        ":8080",
		StateFeedIntervalMS:  250,
	}
}

// Load reads a YAML config file over the defaults.  A missing file is not
// an error; a present-but-broken one is.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) DeviceTimeout() time.Duration { return ms(c.DeviceTimeoutMS) }
func (c Config) PolicyTimeout() time.Duration { return ms(c.PolicyTimeoutMS) }
func (c Config) ManualTick() time.Duration    { return ms(c.ManualTickMS) }
func (c Config) AutoTick() time.Duration      { return ms(c.AutoTickMS) }

func (c Config) CalibrationSpacing() time.Duration { return ms(c.CalibrationSpacingMS) }
func (c Config) StateFeedInterval() time.Duration  { return ms(c.StateFeedIntervalMS) }

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (c Config) validate() error {
	if c.DeviceBaseURL == "" {
		return errors.New("deviceBaseURL must not be empty")
	}
	if c.ManualTickMS <= 0 || c.AutoTickMS <= 0 {
		return errors.New("tick intervals must be positive")
	}
	if c.CalibrationSamples <= 0 {
		return errors.New("calibrationSamples must be positive")
	}
	return nil
}
