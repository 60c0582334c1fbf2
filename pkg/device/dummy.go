package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/skidbot-team/skidbot/go-controller/pkg/command"
)

// Dummy is a stand-in gateway for running the controller without a robot.
// It returns fixed telemetry and records the commands it was asked to send.
type Dummy struct {
	lock     sync.Mutex
	counts   Counts
	imu      map[string]float64
	Executed []command.Action
}

func NewDummy() *Dummy {
	return &Dummy{
		imu: map[string]float64{"gx": 0, "gy": 0, "gz": 0},
	}
}

func (d *Dummy) SetCounts(c Counts) {
	d.lock.Lock()
	d.counts = c
	d.lock.Unlock()
}

func (d *Dummy) SetIMU(imu map[string]float64) {
	d.lock.Lock()
	d.imu = imu
	d.lock.Unlock()
}

func (d *Dummy) ReadCounts(ctx context.Context) (Counts, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.counts, nil
}

func (d *Dummy) ReadIMU(ctx context.Context) (map[string]float64, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	imu := make(map[string]float64, len(d.imu))
	for k, v := range d.imu {
		imu[k] = v
	}
	return imu, nil
}

func (d *Dummy) Execute(ctx context.Context, action command.Action) {
	fmt.Println("Dummy device executing:", action)
	d.lock.Lock()
	d.Executed = append(d.Executed, action)
	d.lock.Unlock()
}

func (d *Dummy) ExecutedCommands() []command.Action {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]command.Action, len(d.Executed))
	copy(out, d.Executed)
	return out
}

var _ Interface = (*Dummy)(nil)
