// Command failsafe runs the gas monitor: sensor producers, the alert engine
// driving the indicator and fan, the broker connection and a status reporter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"failsafe-go/bus"
	"failsafe-go/services/alert"
	"failsafe-go/services/config"
	"failsafe-go/services/hal"
	"failsafe-go/services/mqtt"
	"failsafe-go/services/netlink"
	"failsafe-go/services/report"
	"failsafe-go/services/sched"
	"failsafe-go/services/sensors"
	"failsafe-go/x/slot"
	"failsafe-go/x/strx"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failsafe: %s\n", err)
		os.Exit(1)
	}
}

// run returns nil when ctx is cancelled or a shutdown signal arrives. Any
// error is a startup error.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("failsafe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default: ./failsafe.yaml, then /etc/failsafe/failsafe.yaml)")
	profile := fs.String("profile", "", "board profile: "+strings.Join(config.Profiles(), ", "))
	sim := fs.Bool("sim", false, "simulated sensors and outputs, static link")
	logLevel := fs.String("log-level", "", "override log_level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := config.FindConfig(*configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path, *profile)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := cfg.NewLogger(stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	log.Info("starting",
		"profile", cfg.Profile,
		"config", strx.Coalesce(path, "(embedded)"),
		"sim", *sim,
		"warning", cfg.Thresholds.Warning,
		"critical", cfg.Thresholds.Critical)

	// Hardware
	var plat *hal.Platform
	if *sim {
		plat = hal.OpenSim(cfg.HAL, log)
	} else if plat, err = hal.OpenPeriph(cfg.HAL, log); err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}
	defer func() {
		if err := plat.Close(); err != nil {
			log.Warn("platform close", "err", err)
		}
	}()

	// Network
	b := bus.NewBus(8)
	sess, err := mqtt.New(cfg.MQTT, log)
	if err != nil {
		return err
	}
	var link netlink.Link = &netlink.Iface{Name: cfg.Link.Iface, Timeout: cfg.Link.Timeout}
	if *sim || cfg.Link.Static {
		link = netlink.Static{}
	}
	sup := netlink.NewSupervisor(link, sess, netlink.Options{
		ClientPrefix: cfg.MQTT.ClientPrefix,
		Conn:         b.NewConnection(),
		Logger:       log,
	})
	defer sup.Close()

	// Pipeline
	gas, temp, hum := slot.New[float64](), slot.New[float64](), slot.New[float64]()
	engine := alert.NewEngine(gas, cfg.Thresholds, plat.Indicator, plat.Fan, b.NewConnection(), log)
	rep := report.New(b.NewConnection(), report.Slots{Gas: gas, Temperature: temp, Humidity: hum}, log)
	defer rep.Close()
	rep.WatchNet(sup)

	tasks := []sched.Task{
		{Name: "supervisor", Period: cfg.Periods.Supervisor, Step: sup.Poll},
		{Name: "engine", Period: cfg.Periods.Engine, Step: func(context.Context) { engine.Step() }},
		{Name: "report", Period: cfg.Periods.Report, Jitter: cfg.Jitter, Step: rep.Step},
	}
	if cfg.Producers.Gas {
		p := sensors.NewGasProducer(plat.Gas, gas, sup, cfg.Topics.Gas, log)
		rep.WatchProducer("gas", p)
		tasks = append(tasks, sched.Task{Name: "gas", Period: cfg.Periods.Gas, Jitter: cfg.Jitter, Step: func(context.Context) { p.Step() }})
	}
	if cfg.Producers.Climate {
		p := sensors.NewClimateProducer(plat.Climate, temp, hum, sup, sensors.ClimateTopics{
			Temperature: cfg.Topics.Temperature,
			Humidity:    cfg.Topics.Humidity,
		}, log)
		rep.WatchProducer("climate", p)
		tasks = append(tasks, sched.Task{Name: "climate", Period: cfg.Periods.Climate, Jitter: cfg.Jitter, Step: func(context.Context) { p.Step() }})
	}

	s := sched.New(log)
	for _, t := range tasks {
		if err := s.Add(t); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	err = s.Run(ctx)
	log.Info("shutting down", "reason", err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
