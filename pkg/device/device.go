package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/skidbot-team/skidbot/go-controller/pkg/command"
)

// Counts is one encoder reading for both wheels.  The ticks are
// monotonic-ish; they can wrap or reset when the robot reboots, so treat
// them as opaque.
type Counts struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Interface is the gateway to the robot's onboard HTTP controller.
type Interface interface {
	ReadCounts(ctx context.Context) (Counts, error)
	ReadIMU(ctx context.Context) (map[string]float64, error)
	Execute(ctx context.Context, action command.Action)
}

// Gateway talks to the robot over its simple HTTP surface:
// GET /counts, GET /imu and GET /<action> for motion.
type Gateway struct {
	baseURL string
	client  *http.Client

	countsLock sync.Mutex
	lastCounts Counts
}

func New(baseURL string, client *http.Client) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// ReadCounts fetches and parses the "<left>|<right>" body of /counts.  The
// firmware occasionally garbles a field with stray bytes; a field that
// fails to parse after sanitizing falls back to the previous known value
// for that side rather than failing the read.
func (g *Gateway) ReadCounts(ctx context.Context) (Counts, error) {
	body, err := g.get(ctx, "/counts")
	if err != nil {
		g.countsLock.Lock()
		defer g.countsLock.Unlock()
		return g.lastCounts, errors.Wrap(err, "counts read failed")
	}

	parts := strings.SplitN(strings.TrimSpace(string(body)), "|", 2)

	g.countsLock.Lock()
	defer g.countsLock.Unlock()
	counts := g.lastCounts
	if len(parts) == 2 {
		if v, err := parseTicks(parts[0]); err == nil {
			counts.Left = v
		}
		if v, err := parseTicks(parts[1]); err == nil {
			counts.Right = v
		}
	}
	g.lastCounts = counts
	return counts, nil
}

// ReadIMU fetches /imu and decodes the JSON object of named axes.  A body
// whose top level is not an object counts as a failed read so the caller
// keeps its previous sample.
func (g *Gateway) ReadIMU(ctx context.Context) (map[string]float64, error) {
	body, err := g.get(ctx, "/imu")
	if err != nil {
		return nil, errors.Wrap(err, "imu read failed")
	}
	var imu map[string]float64
	if err := json.Unmarshal(body, &imu); err != nil {
		return nil, errors.Wrap(err, "imu response was not a JSON object")
	}
	if imu == nil {
		return nil, errors.New("imu response was empty")
	}
	return imu, nil
}

// Execute sends a motion command.  Fire-and-forget: a momentary send
// failure must not crash the loop, the next cycle's safety logic handles
// recovery, so failures are logged and swallowed here.
func (g *Gateway) Execute(ctx context.Context, action command.Action) {
	if _, err := g.get(ctx, "/"+string(action)); err != nil {
		fmt.Println("Failed to send command", action, "to robot:", err)
	}
}

func (g *Gateway) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("device returned status %d for %s", resp.StatusCode, path)
	}
	return body, nil
}

// parseTicks strips everything but digits (and a leading sign) from a
// counts field before parsing it.
func parseTicks(raw string) (int, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if (r == '-' || r == '+') && b.Len() == 0 {
			b.WriteRune(r)
		}
	}
	return strconv.Atoi(b.String())
}

var _ Interface = (*Gateway)(nil)
