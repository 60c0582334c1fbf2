package syncloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skidbot-team/skidbot/go-controller/pkg/command"
	"github.com/skidbot-team/skidbot/go-controller/pkg/device"
	"github.com/skidbot-team/skidbot/go-controller/pkg/gyro"
	"github.com/skidbot-team/skidbot/go-controller/pkg/policy"
)

// Mode is the control mode: who decides what the robot does next.
type Mode string

const (
	Manual Mode = "manual"
	Auto   Mode = "auto"
)

// Decider is the remote policy service round-trip.
type Decider interface {
	Decide(ctx context.Context, payload policy.SyncPayload) (policy.Decision, error)
}

// Recorder mirrors loop activity to observers (the MQTT feed).  May be nil.
type Recorder interface {
	RecordPayload(payload policy.SyncPayload)
	RecordForcedStop(reason string)
}

// Loop runs one acquire/correct/decide/dispatch pass per tick and owns all
// of the control state: mode, run id, the currently applied action and the
// latest telemetry sample.  Manual override and mode changes are
// out-of-band: they may interleave with an in-flight cycle and issue their
// stop immediately, most recent dispatch wins.
type Loop struct {
	gateway    device.Interface
	dispatcher *command.Dispatcher
	decider    Decider
	calibrator *gyro.Calibrator
	recorder   Recorder

	manualTick time.Duration
	autoTick   time.Duration

	ctx         context.Context
	cancel      context.CancelFunc
	stopWG      sync.WaitGroup
	tickRestart chan struct{}

	// Guard flag for the at-most-one-cycle-in-flight rule.  A tick that
	// fires while a cycle is still running is dropped, never queued.
	cycleInFlight int32

	lock      sync.Mutex
	mode      Mode
	runID     string
	applied   command.Action
	suggested string
	counts    device.Counts
	imu       map[string]float64 // latest raw sample, retained on failed reads
	corrected map[string]float64
}

type Config struct {
	Gateway    device.Interface
	Dispatcher *command.Dispatcher
	Decider    Decider
	Calibrator *gyro.Calibrator
	Recorder   Recorder
	ManualTick time.Duration
	AutoTick   time.Duration
}

func New(cfg Config) *Loop {
	return &Loop{
		gateway:     cfg.Gateway,
		dispatcher:  cfg.Dispatcher,
		decider:     cfg.Decider,
		calibrator:  cfg.Calibrator,
		recorder:    cfg.Recorder,
		manualTick:  cfg.ManualTick,
		autoTick:    cfg.AutoTick,
		ctx:         context.Background(),
		tickRestart: make(chan struct{}, 1),
		mode:        Manual,
		runID:       uuid.NewString(),
		applied:     command.Stop,
	}
}

// Start launches the periodic trigger.  Stop cancels it and waits for the
// loop goroutine; an in-flight cycle is left to finish on its own.
func (l *Loop) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.stopWG.Add(1)
	go l.run()
}

func (l *Loop) Stop() {
	l.cancel()
	l.stopWG.Wait()
}

func (l *Loop) run() {
	defer l.stopWG.Done()
	defer fmt.Println("Sync loop exited")

	ticker := time.NewTicker(l.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.tickRestart:
			ticker.Stop()
			ticker = time.NewTicker(l.tickInterval())
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&l.cycleInFlight, 0, 1) {
				// Previous pass still going, drop this tick.
				continue
			}
			go func() {
				defer atomic.StoreInt32(&l.cycleInFlight, 0)
				l.runCycle()
			}()
		}
	}
}

func (l *Loop) tickInterval() time.Duration {
	if l.Mode() == Auto {
		return l.autoTick
	}
	return l.manualTick
}

// runCycle is one full pass: acquire, correct, report/decide, act.
func (l *Loop) runCycle() {
	// Acquire.  Each failed read keeps the previous known value; only a
	// total failure (no fresh data at all) aborts the cycle.
	counts, countsErr := l.gateway.ReadCounts(l.ctx)
	imu, imuErr := l.gateway.ReadIMU(l.ctx)

	if countsErr != nil && imuErr != nil {
		fmt.Println("Telemetry acquisition failed:", countsErr)
		l.forceStopIfAuto("telemetry acquisition failed")
		return
	}

	l.lock.Lock()
	if countsErr == nil {
		l.counts = counts
	}
	if imuErr == nil {
		l.imu = imu
	}
	sample := l.imu
	sampleCounts := l.counts
	mode := l.mode
	applied := l.applied
	runID := l.runID
	l.lock.Unlock()

	// Correct.
	corrected := gyro.Correct(sample, l.calibrator.Bias())
	l.lock.Lock()
	l.corrected = corrected
	l.lock.Unlock()

	// Report & decide.
	payload := policy.SyncPayload{
		Timestamp: time.Now().UnixMilli(),
		RunID:     runID,
		IMU:       corrected,
		Counts:    sampleCounts,
		Action:    string(applied),
		Mode:      string(mode),
	}
	if l.recorder != nil {
		l.recorder.RecordPayload(payload)
	}

	decision, err := l.decider.Decide(l.ctx, payload)
	if err != nil {
		fmt.Println("Policy sync failed:", err)
		l.forceStopIfAuto("policy sync failed")
		return
	}
	if decision.OK {
		l.lock.Lock()
		l.suggested = decision.Action
		l.lock.Unlock()
	}

	// Act.  Auto mode only; in manual the suggestion is display-only.
	// Re-read the mode here rather than using the one captured at
	// acquire time: if the operator flipped to manual while we were
	// waiting on the network, their stop wins and this cycle's
	// suggestion must not move the robot.
	action := command.Action(decision.Action)
	if !decision.OK || !command.Valid(action) {
		// The service may legitimately say "no change"; an unknown
		// suggestion is a benign no-op, not an error.
		return
	}
	if l.Mode() != Auto {
		return
	}
	if l.dispatcher.Dispatch(l.ctx, action) {
		l.lock.Lock()
		// Don't clobber a stop the operator raced in ahead of us.
		if l.mode == Auto {
			l.applied = action
		}
		l.lock.Unlock()
	}
}

// forceStopIfAuto is the safety fallback: any sync failure while the
// policy service is driving means the robot must not keep moving.
func (l *Loop) forceStopIfAuto(reason string) {
	l.lock.Lock()
	auto := l.mode == Auto
	if auto {
		l.applied = command.Stop
	}
	l.lock.Unlock()
	if !auto {
		return
	}
	fmt.Println("Forcing stop:", reason)
	l.dispatcher.ForceStop(l.ctx)
	if l.recorder != nil {
		l.recorder.RecordForcedStop(reason)
	}
}
