// dashbridge drives a DWIN serial display from vehicle CAN bus traffic.
// It mirrors bus signals onto the dashboard pages and trend curves, and
// reports values set on the touch screen back onto the bus.
//
// Usage:
//
//	dashbridge [-config /etc/dashbridge.toml] [options]
//
// Options:
//
//	-config string     Configuration file (default: built-in defaults)
//	-display string    Display tty, overrides [display] device
//	-connect string    Display simulator address (host:port or unix:/path)
//	-can string        CAN interface, overrides [bus] interface
//	-no-can            Run without the vehicle bus
//	-log-level string  debug, info, warn or error
//	-metrics string    Prometheus listen address, overrides [metrics] address
//
// Examples:
//
//	# Bench setup against mock-display
//	dashbridge -connect unix:/tmp/dwin -no-can -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dashbridge/pkg/bridge"
	"dashbridge/pkg/canbus"
	"dashbridge/pkg/config"
	"dashbridge/pkg/dashboard"
	"dashbridge/pkg/errors"
	"dashbridge/pkg/log"
	"dashbridge/pkg/metrics"
	"dashbridge/pkg/serial"
)

func main() {
	configFile := flag.String("config", "", "Configuration file (default: built-in defaults)")
	display := flag.String("display", "", "Display tty, overrides [display] device")
	connect := flag.String("connect", "", "Display simulator address (host:port or unix:/path)")
	canIface := flag.String("can", "", "CAN interface, overrides [bus] interface")
	noCAN := flag.Bool("no-can", false, "Run without the vehicle bus")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", errors.ConfigurationFatal("config", "cannot load "+*configFile, err))
			os.Exit(1)
		}
	}
	if *display != "" {
		cfg.Display.Device = *display
		cfg.Display.Address = ""
	}
	if *connect != "" {
		cfg.Display.Address = *connect
	}
	if *canIface != "" {
		cfg.Bus.Interface = *canIface
	}
	if *noCAN {
		cfg.Bus.Disabled = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *metricsAddr != "" {
		cfg.Metrics.Address = *metricsAddr
	}

	logger, closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("dashbridge failed")
		closeLog()
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig) (*log.Logger, func(), error) {
	var logger *log.Logger
	closeFn := func() {}
	if cfg.File != "" {
		l, w, err := log.NewConsoleAndFileLogger("dashbridge", log.RotationConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		logger = l
		closeFn = func() { w.Close() }
	} else {
		logger = log.New("dashbridge")
	}
	logger.SetLevel(log.ParseLevel(cfg.Level))
	logger.SetFormat(log.ParseFormat(cfg.Format))
	log.ConfigureFromEnv(logger)
	log.SetDefaultLogger(logger)
	return logger, closeFn, nil
}

func run(cfg config.Config, logger *log.Logger) error {
	link, err := openDisplay(cfg.Display)
	if err != nil {
		return err
	}
	logger.Info("display link %s", link.Device())

	var bus canbus.Bus
	if cfg.Bus.Disabled {
		logger.Warn("vehicle bus disabled")
	} else {
		sc, err := canbus.Open(canbus.Config{
			Interface:   cfg.Bus.Interface,
			ReadTimeout: cfg.Display.ReadTimeout,
			Filters:     []uint32{dashboard.BusIDStatus, dashboard.BusIDAccel, dashboard.BusIDChassis},
		})
		if err != nil {
			link.Close()
			return errors.ConfigurationFatal("bus", "cannot open "+cfg.Bus.Interface, err)
		}
		logger.Info("vehicle bus %s", sc.Interface())
		bus = sc
	}

	clearDelay := cfg.Refresh.ClearDelay
	if clearDelay == 0 {
		clearDelay = -1
	}
	opts := bridge.Options{
		Interval:   cfg.Refresh.Interval,
		ClearDelay: clearDelay,
	}
	if cfg.Metrics.Address != "" {
		opts.Metrics = metrics.NewBridgeMetrics()
	}

	b, err := bridge.New(link, bus, opts)
	if err != nil {
		link.Close()
		if bus != nil {
			bus.Close()
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.Metrics != nil {
		srv := metrics.NewServer(opts.Metrics, cfg.Metrics.Address)
		if err := srv.Listen(); err != nil {
			logger.WithError(err).Warn("metrics endpoint disabled")
		} else {
			logger.Info("metrics on http://%s/metrics", srv.Addr())
			go func() {
				if err := srv.Start(); err != nil {
					logger.WithError(err).Warn("metrics server stopped")
				}
			}()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				srv.Shutdown(sctx)
			}()
		}
	}

	err = b.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("shutting down")
	}
	return err
}

func openDisplay(cfg config.DisplayConfig) (*serial.Port, error) {
	if cfg.Address != "" {
		timeout := 5 * time.Second
		port, err := serial.Dial(cfg.Address, timeout)
		if err != nil {
			return nil, errors.ConfigurationFatal("display", "cannot connect to "+cfg.Address, err)
		}
		port.SetReadTimeout(cfg.ReadTimeout)
		return port, nil
	}
	if strings.TrimSpace(cfg.Device) == "" {
		return nil, errors.ConfigurationFatal("display", "no device configured", nil)
	}
	port, err := serial.Open(serial.Config{
		Device:      cfg.Device,
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, errors.ConfigurationFatal("display", "cannot open "+cfg.Device, err)
	}
	return port, nil
}
