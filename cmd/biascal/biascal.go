package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"

	"github.com/skidbot-team/skidbot/go-controller/pkg/config"
	"github.com/skidbot-team/skidbot/go-controller/pkg/device"
	"github.com/skidbot-team/skidbot/go-controller/pkg/gyro"
)

func main() {
	fmt.Println("---- Gyro bias calibration ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	cfgPath := os.Getenv("SKIDBOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "/etc/skidbot/controller.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway := device.New(cfg.DeviceBaseURL, &http.Client{Timeout: cfg.DeviceTimeout()})
	calibrator := gyro.NewCalibrator(gateway, cfg.CalibrationSamples, cfg.CalibrationSpacing())

	calibrator.Calibrate(ctx)
	bias := calibrator.Bias()
	fmt.Printf("Bias: gx=%.6f gy=%.6f gz=%.6f\n", bias.GX, bias.GY, bias.GZ)
}
