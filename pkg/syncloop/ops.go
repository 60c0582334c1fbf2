package syncloop

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/skidbot-team/skidbot/go-controller/pkg/command"
	"github.com/skidbot-team/skidbot/go-controller/pkg/device"
	"github.com/skidbot-team/skidbot/go-controller/pkg/gyro"
)

// Snapshot is what the display layer gets to see.  Always a copy, never a
// window onto the loop's own state.
type Snapshot struct {
	Mode        Mode               `json:"mode"`
	RunID       string             `json:"runId"`
	Counts      device.Counts      `json:"counts"`
	IMU         map[string]float64 `json:"imu"` // latest corrected reading
	Applied     command.Action     `json:"applied"`
	Suggested   string             `json:"suggested"`
	Calibrating bool               `json:"calibrating"`
	Bias        gyro.Bias          `json:"bias"`
}

// Mode returns the current control mode.
func (l *Loop) Mode() Mode {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.mode
}

// SetMode switches between manual and auto control.  Switching to manual
// always forces an immediate stop, independent of any in-flight cycle, and
// the tick interval is reconfigured by restarting the periodic trigger.
func (l *Loop) SetMode(mode Mode) {
	if mode != Manual && mode != Auto {
		return
	}
	l.lock.Lock()
	if l.mode == mode {
		l.lock.Unlock()
		return
	}
	l.mode = mode
	if mode == Manual {
		l.applied = command.Stop
	}
	l.lock.Unlock()

	fmt.Println("Control mode now:", mode)
	if mode == Manual {
		l.dispatcher.ForceStop(l.ctx)
	}

	select {
	case l.tickRestart <- struct{}{}:
	default:
	}
}

// PressStart begins a press-and-hold manual command: the action is applied
// and dispatched immediately.  Only meaningful in manual mode.
func (l *Loop) PressStart(action command.Action) {
	if !command.Valid(action) {
		return
	}
	l.lock.Lock()
	if l.mode != Manual {
		l.lock.Unlock()
		return
	}
	l.applied = action
	l.lock.Unlock()

	l.gateway.Execute(l.ctx, action)
	l.dispatcher.NoteSent(action)
}

// PressEnd covers both release and cancellation of a press-and-hold: it
// always reverts to stop and sends it.
func (l *Loop) PressEnd() {
	l.lock.Lock()
	if l.mode != Manual {
		l.lock.Unlock()
		return
	}
	l.applied = command.Stop
	l.lock.Unlock()

	l.dispatcher.ForceStop(l.ctx)
}

// StopNow is the operator's big red button: unconditional stop regardless
// of mode.  It must work even while the loop is shutting down, so it does
// not run under the loop's context; the gateway's own timeout bounds it.
func (l *Loop) StopNow() {
	l.lock.Lock()
	l.applied = command.Stop
	l.lock.Unlock()
	l.dispatcher.ForceStop(context.Background())
}

// NewRun starts a fresh logging session.  Motion state is untouched; only
// the tag on outgoing payloads changes.
func (l *Loop) NewRun() string {
	id := uuid.NewString()
	l.lock.Lock()
	l.runID = id
	l.lock.Unlock()
	fmt.Println("New run:", id)
	return id
}

// Calibrate kicks off a gyro bias calibration in the background.  The
// calibrator ignores the request if one is already running.
func (l *Loop) Calibrate() {
	go l.calibrator.Calibrate(l.ctx)
}

// State returns a snapshot of the observable loop state.
func (l *Loop) State() Snapshot {
	l.lock.Lock()
	defer l.lock.Unlock()

	imu := make(map[string]float64, len(l.corrected))
	for k, v := range l.corrected {
		imu[k] = v
	}
	return Snapshot{
		Mode:        l.mode,
		RunID:       l.runID,
		Counts:      l.counts,
		IMU:         imu,
		Applied:     l.applied,
		Suggested:   l.suggested,
		Calibrating: l.calibrator.Running(),
		Bias:        l.calibrator.Bias(),
	}
}
