package gyro

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skidbot-team/skidbot/go-controller/pkg/device"
)

// Calibrator measures the static gyro bias by averaging raw readings while
// the robot sits still.  Only one calibration can run at a time; a second
// request while one is in progress is dropped.
type Calibrator struct {
	gateway device.Interface
	samples int
	spacing time.Duration

	running int32

	lock sync.Mutex
	bias Bias
}

func NewCalibrator(gateway device.Interface, samples int, spacing time.Duration) *Calibrator {
	return &Calibrator{
		gateway: gateway,
		samples: samples,
		spacing: spacing,
	}
}

// Bias returns the current bias estimate.
func (c *Calibrator) Bias() Bias {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.bias
}

// Running reports whether a calibration pass is in progress.
func (c *Calibrator) Running() bool {
	return atomic.LoadInt32(&c.running) == 1
}

// Calibrate blocks while it takes the configured number of raw gyro
// readings, spaced apart so the robot must stay still for the whole run,
// and stores the per-axis mean as the new bias.  Samples that fail to
// fetch are skipped, not zero-filled; if every sample fails the bias is
// left unchanged.  Returns false if another calibration was already
// running (the call is a no-op in that case).
func (c *Calibrator) Calibrate(ctx context.Context) bool {
	if !atomic.CompareAndSwapInt32(&c.running, 0, 1) {
		fmt.Println("Calibration already in progress, ignoring request")
		return false
	}
	defer atomic.StoreInt32(&c.running, 0)

	fmt.Println("Calibrating gyro, keep the robot still...")
	var sumX, sumY, sumZ float64
	var n int
	for i := 0; i < c.samples; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				fmt.Println("Calibration cancelled")
				return true
			case <-time.After(c.spacing):
			}
		}
		imu, err := c.gateway.ReadIMU(ctx)
		if err != nil {
			fmt.Println("Skipping calibration sample:", err)
			continue
		}
		sumX += imu["gx"]
		sumY += imu["gy"]
		sumZ += imu["gz"]
		n++
	}

	if n == 0 {
		fmt.Println("No calibration samples collected, keeping previous bias")
		return true
	}

	bias := Bias{
		GX: sumX / float64(n),
		GY: sumY / float64(n),
		GZ: sumZ / float64(n),
	}
	c.lock.Lock()
	c.bias = bias
	c.lock.Unlock()
	fmt.Printf("Calibration done over %d samples: gx=%.4f gy=%.4f gz=%.4f\n",
		n, bias.GX, bias.GY, bias.GZ)
	return true
}
