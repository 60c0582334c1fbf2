package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/skidbot-team/skidbot/go-controller/pkg/device"
)

// SyncPayload is the observation/action record for one loop cycle.  It is
// both the training log entry and the request body the policy service
// decides on.  Built fresh each cycle, never persisted here.
type SyncPayload struct {
	Timestamp int64              `json:"timestamp"` // epoch millis
	RunID     string             `json:"runId"`
	IMU       map[string]float64 `json:"imu"` // bias-corrected
	Counts    device.Counts      `json:"counts"`
	Action    string             `json:"action"` // currently applied
	Mode      string             `json:"mode"`
}

// Decision is the policy service's answer.  OK is false when the service
// had no suggestion, which is a normal outcome, not a failure.
type Decision struct {
	Action string
	OK     bool
}

// Client posts sync payloads to the remote policy service.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string, client *http.Client) *Client {
	return &Client{url: url, client: client}
}

// Decide posts the payload and parses the suggested action out of the
// response.  Transport errors, non-200 statuses and unparseable bodies are
// sync failures and come back as errors.  A well-formed response with a
// missing or non-string action is an empty Decision.
func (c *Client) Decide(ctx context.Context, payload SyncPayload) (Decision, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to encode sync payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Decision{}, errors.Wrap(err, "policy request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to read policy response")
	}
	if resp.StatusCode != http.StatusOK {
		return Decision{}, errors.Errorf("policy service returned status %d", resp.StatusCode)
	}

	// Decode loosely: the action field may be absent, null, or (from a
	// buggy service) not a string at all.  All of those mean "no
	// suggestion", which is not an error.
	var parsed map[string]interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Decision{}, errors.Wrap(err, "failed to parse policy response")
	}
	action, ok := parsed["action"].(string)
	if !ok || action == "" {
		return Decision{}, nil
	}
	return Decision{Action: action, OK: true}, nil
}
