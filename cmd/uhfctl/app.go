package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/uhfsession/internal/reader"
	"github.com/srg/uhfsession/internal/reader/goble"
	"github.com/srg/uhfsession/internal/reader/sim"
	"github.com/srg/uhfsession/internal/ringchan"
	"github.com/srg/uhfsession/pkg/config"
	"github.com/srg/uhfsession/session"
)

// app is the per-invocation wiring: config, logger, driver and session.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	driver reader.Driver
	med    *session.Mediator
	out    *printer
}

// loadConfig reads --config and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if kind, _ := cmd.Flags().GetString("driver"); kind != "" {
		cfg.Driver.Kind = kind
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDriver(cfg *config.Config, logger *logrus.Logger) (reader.Driver, error) {
	switch cfg.Driver.Kind {
	case config.DriverBLE:
		drv, err := goble.New(&goble.Options{
			ServiceUUID:    cfg.Driver.BLE.ServiceUUID,
			WriteCharUUID:  cfg.Driver.BLE.WriteCharUUID,
			NotifyCharUUID: cfg.Driver.BLE.NotifyCharUUID,
			ConnectTimeout: cfg.Driver.BLE.ConnectTimeout,
			BufferSize:     cfg.Driver.BLE.BufferSize,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create BLE driver: %w", err)
		}
		return drv, nil
	default:
		opts := sim.DefaultOptions()
		opts.Latency = cfg.Driver.Sim.Latency
		opts.TagInterval = cfg.Driver.Sim.TagInterval
		opts.LinkLossAfter = cfg.Driver.Sim.LinkLossAfter
		opts.Logger = logger
		return sim.New(opts), nil
	}
}

// openApp builds the session for cmd. The caller must Close it.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	drv, err := newDriver(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		driver: drv,
		med:    session.New(drv, cfg.SessionOptions(logger)),
		out:    newPrinter(cmd.OutOrStdout()),
	}, nil
}

func (a *app) Close() {
	_ = a.med.Close()
	if err := a.driver.Close(); err != nil {
		a.logger.WithError(err).Warn("Driver close failed")
	}
}

// findReader scans until a reader with address (any reader when address is
// empty) is discovered, or timeout elapses.
func (a *app) findReader(ctx context.Context, address string, timeout time.Duration) (reader.Peripheral, error) {
	found := ringchan.New[reader.Peripheral](a.cfg.Session.StreamBuffer)
	defer found.Close()

	if err := a.med.StartScan(ctx, found.Sink()); err != nil {
		return reader.Peripheral{}, fmt.Errorf("failed to start scan: %w", err)
	}
	defer func() {
		if _, err := a.med.StopScan(context.Background()); err != nil {
			a.logger.WithError(err).Debug("Stop scan failed")
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case p := <-found.C():
			if address == "" || strings.EqualFold(p.Address, address) {
				return p, nil
			}
		case <-timer.C:
			if address == "" {
				return reader.Peripheral{}, fmt.Errorf("%w within %s", ErrNoReader, timeout)
			}
			return reader.Peripheral{}, fmt.Errorf("%w: %s not seen within %s", ErrNoReader, address, timeout)
		case <-ctx.Done():
			return reader.Peripheral{}, ctx.Err()
		}
	}
}

// connect finds the reader and opens a session with it.
func (a *app) connect(ctx context.Context, address string, timeout time.Duration) (reader.Peripheral, error) {
	a.out.status("Looking for %s...", readerLabel(address))
	p, err := a.findReader(ctx, address, timeout)
	if err != nil {
		return p, err
	}

	a.out.status("Connecting to %s (%s)...", p.Name, p.Address)
	ok, err := a.med.Connect(ctx, p.Address)
	if err != nil {
		return p, err
	}
	if !ok {
		return p, ErrConnectionRefused
	}
	a.out.success("Connected to %s", p.Name)
	return p, nil
}

// disconnect is best effort; it runs on the way out of a command.
func (a *app) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.med.Disconnect(ctx); err != nil {
		a.logger.WithError(err).Debug("Disconnect failed")
	}
}

func readerLabel(address string) string {
	if address == "" {
		return "a reader"
	}
	return address
}
