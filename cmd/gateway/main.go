// The gateway binary hosts the whole control plane: it wires the settings
// store, device adapter, error middleware, performance monitor, automation
// engine, heating controller and domain subsystems under one supervisor,
// then fronts them with the HTTP+realtime gateway until SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/homepilot/control-plane/internal/automation"
	"github.com/homepilot/control-plane/internal/bus"
	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/config"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/domains/energy"
	"github.com/homepilot/control-plane/internal/domains/irrigation"
	"github.com/homepilot/control-plane/internal/domains/pool"
	"github.com/homepilot/control-plane/internal/domains/security"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/gatewayhttp"
	"github.com/homepilot/control-plane/internal/heating"
	"github.com/homepilot/control-plane/internal/notify"
	"github.com/homepilot/control-plane/internal/obslog"
	"github.com/homepilot/control-plane/internal/perfmon"
	"github.com/homepilot/control-plane/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obslog.New("gateway", "error", "text").WithError(err).Error("configuration failed")
		os.Exit(1)
	}

	log := obslog.New("gateway", cfg.Logging.Level, cfg.Logging.Format)
	clk := clock.Real{}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The error history and bus reference each other: subscriber failures
	// are recorded in the history, and error storms publish on the bus.
	var eventBus *bus.Bus
	history := errs.NewHistory(func(system string, count int, window time.Duration) {
		if eventBus != nil {
			eventBus.PublishEvent("error-storm", map[string]any{
				"system": system,
				"count":  count,
				"window": window.String(),
			})
		}
	})
	eventBus = bus.NewBus(history)
	supervisor := bus.NewSupervisor(eventBus)

	store := settings.NewMemory()
	store.Set(energy.TariffKey, cfg.Control.EnergyTariffSEK)

	// The demo manager doubles as the upstream until a real device SDK
	// adapter is configured, and as the degraded-mode fallback source.
	demo := devicemanager.NewDemo()
	devices := devicemanager.NewCacheAdapter(demo, cfg.Control.DeviceCallTimeout)

	monitor := perfmon.New(time.Now())
	gauges := perfmon.NewGauges()
	gauges.Start(ctx, clk, cfg.Control.GaugeSampleInterval)
	defer gauges.Stop()
	metrics := perfmon.NewRegistry(monitor, gauges)

	notifier := notify.NewCenter(nil)

	controller := heating.NewController(heating.Config{
		Clock:        clk,
		Devices:      devices,
		History:      history,
		Notifier:     notifier,
		Bus:          eventBus,
		Log:          log.WithModule("heating"),
		TickInterval: cfg.Control.HeatingTickInterval,
	})

	evalCtx := automation.EvalContext{Lookup: deviceLookup(devices, cfg.Control.DeviceCallTimeout)}
	engine := automation.NewEngine(automation.Config{
		Clock:    clk,
		Devices:  devices,
		Notifier: notifier,
		History:  history,
		Bus:      eventBus,
		Log:      log.WithModule("automation"),
	})
	scheduler := automation.NewScheduler(engine, clk, evalCtx)

	energyMod := energy.New(energy.Config{
		Clock:         clk,
		Devices:       devices,
		History:       history,
		Settings:      store,
		Bus:           eventBus,
		Interval:      30 * time.Second,
		DefaultTariff: cfg.Control.EnergyTariffSEK,
	})
	poolMod := pool.New(pool.Config{
		Clock:          clk,
		Devices:        devices,
		History:        history,
		Interval:       time.Minute,
		SensorDeviceID: "pool-sensor",
		PumpDeviceID:   "pool-dosing-pump",
	})
	irrigationMod := irrigation.New(irrigation.Config{
		Clock:            clk,
		Devices:          devices,
		History:          history,
		Interval:         time.Minute,
		MoistureDeviceID: "soil-sensor",
		ValveDeviceID:    "irrigation-valve",
		WindowStartHour:  5,
		WindowEndHour:    9,
	})
	securityMod := security.New(security.Config{Clock: clk, Bus: eventBus, Notifier: notifier})

	for _, module := range []bus.ServiceModule{
		securityMod,
		energyMod,
		poolMod,
		irrigationMod,
		automation.NewModule(engine, scheduler, evalCtx),
		heating.NewModule(controller, clk),
	} {
		if err := supervisor.RegisterModule(module); err != nil {
			log.WithError(err).WithField("module", module.Name()).Error("module registration failed")
			os.Exit(1)
		}
	}

	server, err := gatewayhttp.New(gatewayhttp.Deps{
		Config:     cfg,
		Log:        log,
		Supervisor: supervisor,
		Bus:        eventBus,
		Monitor:    monitor,
		Metrics:    metrics,
		Devices:    devices,
		Demo:       demo,
		Energy:     energyMod,
		Security:   securityMod,
		History:    history,
	})
	if err != nil {
		log.WithError(err).Error("gateway construction failed")
		os.Exit(1)
	}

	summary := supervisor.LoadAll(ctx, server.Router())
	log.WithModule("supervisor").
		WithField("total", summary.Total).
		WithField("ready", summary.Ready).
		WithField("failed", summary.Failed).
		Info("modules loaded")
	server.SetReady(true)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("gateway listener failed")
			os.Exit(1)
		}
		return
	}

	eventBus.PublishEvent("shutdown", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("request drain incomplete")
	}
	if err := supervisor.DestroyAll(shutdownCtx); err != nil {
		log.WithError(err).Warn("module teardown reported failures")
	}
	log.Info("gateway stopped")
}

// deviceLookup resolves automation condition refs of the form
// "device.<id>.<capability>" against the device adapter.
func deviceLookup(devices devicemanager.Manager, timeout time.Duration) func(ref string) (any, bool) {
	return func(ref string) (any, bool) {
		parts := strings.SplitN(ref, ".", 3)
		if len(parts) != 3 || parts[0] != "device" {
			return nil, false
		}
		deviceID, capability := parts[1], parts[2]

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		v, err := devices.GetDeviceCapability(ctx, deviceID, capability)
		if err != nil {
			return nil, false
		}
		return v, true
	}
}
