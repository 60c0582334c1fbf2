package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/skidbot-team/skidbot/go-controller/pkg/command"
	"github.com/skidbot-team/skidbot/go-controller/pkg/config"
	"github.com/skidbot-team/skidbot/go-controller/pkg/device"
	"github.com/skidbot-team/skidbot/go-controller/pkg/gyro"
	"github.com/skidbot-team/skidbot/go-controller/pkg/policy"
	"github.com/skidbot-team/skidbot/go-controller/pkg/statefeed"
	"github.com/skidbot-team/skidbot/go-controller/pkg/syncloop"
	"github.com/skidbot-team/skidbot/go-controller/pkg/telemetry"
)

func main() {
	fmt.Println("---- Skidbot sync controller ----")
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

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	registerSignalHandlers(cancel)

	var gateway device.Interface
	if os.Getenv("SKIDBOT_DUMMY_DEVICE") == "true" {
		fmt.Println("Using dummy device gateway")
		gateway = device.NewDummy()
	} else {
		gateway = device.New(cfg.DeviceBaseURL, &http.Client{Timeout: cfg.DeviceTimeout()})
	}

	dispatcher := command.NewDispatcher(gateway)
	calibrator := gyro.NewCalibrator(gateway, cfg.CalibrationSamples, cfg.CalibrationSpacing())
	decider := policy.NewClient(cfg.PolicyURL, &http.Client{Timeout: cfg.PolicyTimeout()})

	mirror, err := telemetry.Connect(telemetry.Config{
		Broker:         cfg.MQTTBroker,
		ClientID:       cfg.MQTTClientID,
		TopicPayload:   cfg.TopicPayload,
		TopicForcedOps: cfg.TopicForcedOps,
	})
	if err != nil {
		// The mirror is an observer, not a dependency; run without it.
		fmt.Println("Telemetry mirror unavailable:", err)
	}
	defer mirror.Close()

	loop := syncloop.New(syncloop.Config{
		Gateway:    gateway,
		Dispatcher: dispatcher,
		Decider:    decider,
		Calibrator: calibrator,
		Recorder:   mirror,
		ManualTick: cfg.ManualTick(),
		AutoTick:   cfg.AutoTick(),
	})
	defer func() {
		fmt.Println("Stopping motors for shut down")
		loop.StopNow()
		time.Sleep(100 * time.Millisecond)
	}()

	loop.Start(ctx)
	defer loop.Stop()

	if cfg.StateFeedAddr != "" {
		feed := statefeed.New(cfg.StateFeedAddr, loop, cfg.StateFeedInterval())
		feed.Start()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			feed.Shutdown(shutdownCtx)
		}()
	}

	fmt.Println("Run id:", loop.State().RunID)
	<-ctx.Done()
	fmt.Println("Context done, shutting down")
}

func registerSignalHandlers(cancel context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		fmt.Println("Signal:", s)
		cancel()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
