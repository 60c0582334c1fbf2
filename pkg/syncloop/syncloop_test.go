package syncloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/skidbot-team/skidbot/go-controller/pkg/command"
	"github.com/skidbot-team/skidbot/go-controller/pkg/device"
	"github.com/skidbot-team/skidbot/go-controller/pkg/gyro"
	"github.com/skidbot-team/skidbot/go-controller/pkg/policy"
)

type fakeDecider struct {
	lock     sync.Mutex
	action   string
	fail     bool
	payloads []policy.SyncPayload
}

func (f *fakeDecider) Decide(ctx context.Context, payload policy.SyncPayload) (policy.Decision, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.payloads = append(f.payloads, payload)
	if f.fail {
		return policy.Decision{}, errors.New("simulated sync failure")
	}
	if f.action == "" {
		return policy.Decision{}, nil
	}
	return policy.Decision{Action: f.action, OK: true}, nil
}

func (f *fakeDecider) set(action string, fail bool) {
	f.lock.Lock()
	f.action = action
	f.fail = fail
	f.lock.Unlock()
}

func (f *fakeDecider) sentPayloads() []policy.SyncPayload {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]policy.SyncPayload, len(f.payloads))
	copy(out, f.payloads)
	return out
}

// brokenGateway fails every read, simulating a robot that dropped off the
// network entirely.  Commands still record so the safety stop is visible.
type brokenGateway struct {
	device.Dummy
}

func (g *brokenGateway) ReadCounts(ctx context.Context) (device.Counts, error) {
	return device.Counts{}, errors.New("device unreachable")
}

func (g *brokenGateway) ReadIMU(ctx context.Context) (map[string]float64, error) {
	return nil, errors.New("device unreachable")
}

func newTestLoop(gw device.Interface, dec Decider) *Loop {
	return New(Config{
		Gateway:    gw,
		Dispatcher: command.NewDispatcher(gw),
		Decider:    dec,
		Calibrator: gyro.NewCalibrator(gw, 3, time.Millisecond),
		ManualTick: 500 * time.Millisecond,
		AutoTick:   200 * time.Millisecond,
	})
}

// calibratorWithBias builds a calibrator whose bias is already known, by
// calibrating once against a stationary reading equal to the wanted bias.
func calibratorWithBias(bias gyro.Bias) *gyro.Calibrator {
	d := device.NewDummy()
	d.SetIMU(map[string]float64{"gx": bias.GX, "gy": bias.GY, "gz": bias.GZ})
	c := gyro.NewCalibrator(d, 1, time.Millisecond)
	c.Calibrate(context.Background())
	return c
}

func countOf(actions []command.Action, want command.Action) int {
	n := 0
	for _, a := range actions {
		if a == want {
			n++
		}
	}
	return n
}

func TestAutoDispatchesNovelAction(t *testing.T) {
	dev := device.NewDummy()
	dec := &fakeDecider{action: "forward"}
	l := newTestLoop(dev, dec)
	l.SetMode(Auto)

	l.runCycle()

	require.Equal(t, []command.Action{command.Forward}, dev.ExecutedCommands())
	require.Equal(t, command.Forward, l.State().Applied)
	require.Equal(t, "forward", l.State().Suggested)
}

func TestIdenticalSuggestionDispatchedOnce(t *testing.T) {
	dev := device.NewDummy()
	dec := &fakeDecider{action: "forward"}
	l := newTestLoop(dev, dec)
	l.SetMode(Auto)

	l.runCycle()
	l.runCycle()

	// Two cycles, identical valid suggestion: exactly one execute.
	require.Equal(t, 1, countOf(dev.ExecutedCommands(), command.Forward))
	require.Len(t, dec.sentPayloads(), 2)
	// The second cycle's payload logs the action applied by the first.
	require.Equal(t, "forward", dec.sentPayloads()[1].Action)
}

func TestPolicyFailureForcesStopInAuto(t *testing.T) {
	dev := device.NewDummy()
	dec := &fakeDecider{action: "forward"}
	l := newTestLoop(dev, dec)
	l.SetMode(Auto)

	l.runCycle()
	require.Equal(t, command.Forward, l.State().Applied)

	dec.set("", true)
	l.runCycle()

	require.Equal(t, 1, countOf(dev.ExecutedCommands(), command.Stop))
	require.Equal(t, command.Stop, l.State().Applied)
}

func TestPolicyFailureInManualDoesNotStop(t *testing.T) {
	dev := device.NewDummy()
	dec := &fakeDecider{fail: true}
	l := newTestLoop(dev, dec)

	l.runCycle()

	require.Empty(t, dev.ExecutedCommands())
}

func TestManualModeNeverExecutesSuggestion(t *testing.T) {
	dev := device.NewDummy()
	dec := &fakeDecider{action: "forward"}
	l := newTestLoop(dev, dec)

	l.runCycle()

	// The suggestion is recorded for display, never dispatched.
	require.Empty(t, dev.ExecutedCommands())
	require.Equal(t, "forward", l.State().Suggested)
	require.Equal(t, command.Stop, l.State().Applied)
}

func TestInvalidSuggestionIgnored(t *testing.T) {
	dev := device.NewDummy()
	dec := &fakeDecider{action: "spin"}
	l := newTestLoop(dev, dec)
	l.SetMode(Auto)

	l.runCycle()

	require.Empty(t, dev.ExecutedCommands())
	require.Equal(t, command.Stop, l.State().Applied)
}

func TestNoSuggestionIsNoOp(t *testing.T) {
	dev := device.NewDummy()
	dec := &fakeDecider{}
	l := newTestLoop(dev, dec)
	l.SetMode(Auto)

	l.runCycle()

	require.Empty(t, dev.ExecutedCommands())
}

func TestAcquireFailureForcesStopAndSkipsPolicy(t *testing.T) {
	gw := &brokenGateway{}
	dec := &fakeDecider{action: "forward"}
	l := newTestLoop(gw, dec)
	l.SetMode(Auto)

	l.runCycle()

	require.Equal(t, []command.Action{command.Stop}, gw.ExecutedCommands())
	require.Empty(t, dec.sentPayloads())
	require.Equal(t, command.Stop, l.State().Applied)
}

func TestPayloadCarriesCorrectedIMU(t *testing.T) {
	dev := device.NewDummy()
	dev.SetIMU(map[string]float64{"gx": 1.0, "gy": 2.0, "gz": 3.0, "ax": 9.8})
	dev.SetCounts(device.Counts{Left: 5, Right: 6})
	dec := &fakeDecider{}
	l := newTestLoop(dev, dec)
	l.calibrator = calibratorWithBias(gyro.Bias{GX: 0.1, GY: 0.2, GZ: 0.3})

	l.runCycle()

	payloads := dec.sentPayloads()
	require.Len(t, payloads, 1)
	p := payloads[0]
	require.InDelta(t, 0.9, p.IMU["gx"], 1e-9)
	require.InDelta(t, 1.8, p.IMU["gy"], 1e-9)
	require.InDelta(t, 2.7, p.IMU["gz"], 1e-9)
	require.InDelta(t, 9.8, p.IMU["ax"], 1e-9)
	require.Equal(t, device.Counts{Left: 5, Right: 6}, p.Counts)
	require.Equal(t, "manual", p.Mode)
	require.NotEmpty(t, p.RunID)
	require.NotZero(t, p.Timestamp)
}
