package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/skidbot-team/skidbot/go-controller/pkg/policy"
)

// Mirror publishes each sync payload (and forced-stop events) to MQTT so
// observers on the bench can watch a run live.  Strictly best-effort: a
// broker outage is logged and ignored, it must never touch the control
// loop.  A nil *Mirror is a valid, disabled mirror.
type Mirror struct {
	client         mqtt.Client
	topicPayload   string
	topicForcedOps string
}

type Config struct {
	Broker         string
	ClientID       string
	TopicPayload   string
	TopicForcedOps string
}

// Connect dials the broker.  Returns a nil Mirror (disabled) when no
// broker is configured.
func Connect(cfg Config) (*Mirror, error) {
	if cfg.Broker == "" {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectRetry(true).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, errors.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "MQTT connect failed")
	}
	fmt.Println("Telemetry mirror connected to", cfg.Broker)
	return &Mirror{
		client:         client,
		topicPayload:   cfg.TopicPayload,
		topicForcedOps: cfg.TopicForcedOps,
	}, nil
}

func (m *Mirror) RecordPayload(payload policy.SyncPayload) {
	if m == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		fmt.Println("Telemetry mirror marshal error:", err)
		return
	}
	m.client.Publish(m.topicPayload, 0, true, raw)
}

func (m *Mirror) RecordForcedStop(reason string) {
	if m == nil {
		return
	}
	raw, err := json.Marshal(map[string]interface{}{
		"reason":    reason,
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		fmt.Println("Telemetry mirror marshal error:", err)
		return
	}
	m.client.Publish(m.topicForcedOps, 0, false, raw)
}

// Close disconnects from the broker, allowing a short drain.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.client.Disconnect(250)
}
