// Command tec-monitor polls a TC-720 temperature controller, logs every
// reading to disk and serves live readings over HTTP and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/applog"
	"github.com/sweeney/tec-monitor/internal/command"
	"github.com/sweeney/tec-monitor/internal/datalog"
	"github.com/sweeney/tec-monitor/internal/gpio"
	"github.com/sweeney/tec-monitor/internal/mqtt"
	"github.com/sweeney/tec-monitor/internal/session"
	"github.com/sweeney/tec-monitor/internal/status"
	"github.com/sweeney/tec-monitor/internal/tec"
	"github.com/sweeney/tec-monitor/internal/web"
)

const (
	flagPort          = "port"
	flagSerialNumber  = "serial-number"
	flagSimulation    = "simulation"
	flagPoll          = "poll"
	flagDispatch      = "dispatch"
	flagHistory       = "history"
	flagMaxPollErrors = "max-poll-errors"
	flagLogDir        = "log-dir"
	flagLogPrefix     = "log-prefix"
	flagLogging       = "logging"
	flagBroker        = "broker"
	flagPublishEvery  = "publish-every"
	flagHTTP          = "http"
	flagInterlockChip = "interlock-chip"
	flagInterlockPin  = "interlock-pin"
	flagDebounce      = "debounce"
	flagHeartbeat     = "heartbeat"
	flagAppLog        = "app-log"
	flagLogLevel      = "log-level"
	flagPrintState    = "print-state"
)

// DefaultSerialNumber is the serial number of the controller's USB adapter.
const DefaultSerialNumber = "AH05OQGC"

// forwarderQueue bounds the samples waiting for the MQTT goroutine.
const forwarderQueue = 64

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func envVar(name string) []string {
	return []string{"TEC_" + name}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tec-monitor",
		Usage: "monitor and control a TC-720 thermoelectric controller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagPort,
				Usage:   "serial port of the controller; found by --serial-number when empty",
				EnvVars: envVar("PORT"),
			},
			&cli.StringFlag{
				Name:    flagSerialNumber,
				Value:   DefaultSerialNumber,
				Usage:   "USB serial number used to find the controller",
				EnvVars: envVar("SERIAL_NUMBER"),
			},
			&cli.BoolFlag{
				Name:    flagSimulation,
				Usage:   "use a simulated controller instead of the serial device",
				EnvVars: envVar("SIMULATION"),
			},
			&cli.DurationFlag{
				Name:    flagPoll,
				Value:   session.DefaultPollInterval,
				Usage:   "controller polling interval",
				EnvVars: envVar("POLL"),
			},
			&cli.DurationFlag{
				Name:    flagDispatch,
				Value:   session.DefaultDispatchInterval,
				Usage:   "command queue check interval",
				EnvVars: envVar("DISPATCH"),
			},
			&cli.IntFlag{
				Name:    flagHistory,
				Value:   session.DefaultHistorySize,
				Usage:   "samples kept in memory for the plot",
				EnvVars: envVar("HISTORY"),
			},
			&cli.IntFlag{
				Name:    flagMaxPollErrors,
				Usage:   "stop polling after this many consecutive failures (0 never stops)",
				EnvVars: envVar("MAX_POLL_ERRORS"),
			},
			&cli.StringFlag{
				Name:    flagLogDir,
				Value:   "data",
				Usage:   "directory for data logs",
				EnvVars: envVar("LOG_DIR"),
			},
			&cli.StringFlag{
				Name:    flagLogPrefix,
				Usage:   "file name prefix of the first data log",
				EnvVars: envVar("LOG_PREFIX"),
			},
			&cli.BoolFlag{
				Name:    flagLogging,
				Value:   true,
				Usage:   "write a data log from startup",
				EnvVars: envVar("LOGGING"),
			},
			&cli.StringFlag{
				Name:    flagBroker,
				Usage:   "MQTT broker address, e.g. tcp://localhost:1883 (empty disables MQTT)",
				EnvVars: envVar("BROKER"),
			},
			&cli.IntFlag{
				Name:    flagPublishEvery,
				Value:   10,
				Usage:   "publish every Nth sample to MQTT",
				EnvVars: envVar("PUBLISH_EVERY"),
			},
			&cli.StringFlag{
				Name:    flagHTTP,
				Value:   ":8080",
				Usage:   "HTTP status address (empty disables)",
				EnvVars: envVar("HTTP"),
			},
			&cli.StringFlag{
				Name:    flagInterlockChip,
				Value:   gpio.DefaultChip,
				Usage:   "GPIO chip of the interlock line",
				EnvVars: envVar("INTERLOCK_CHIP"),
			},
			&cli.IntFlag{
				Name:    flagInterlockPin,
				Value:   gpio.Disabled,
				Usage:   "GPIO line of the interlock switch (-1 disables)",
				EnvVars: envVar("INTERLOCK_PIN"),
			},
			&cli.DurationFlag{
				Name:    flagDebounce,
				Value:   250 * time.Millisecond,
				Usage:   "interlock debounce duration",
				EnvVars: envVar("DEBOUNCE"),
			},
			&cli.DurationFlag{
				Name:    flagHeartbeat,
				Value:   15 * time.Minute,
				Usage:   "heartbeat interval (0 disables)",
				EnvVars: envVar("HEARTBEAT"),
			},
			&cli.StringFlag{
				Name:    flagAppLog,
				Usage:   "also write the application log as JSON to this file",
				EnvVars: envVar("APP_LOG"),
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Value:   "info",
				Usage:   "application log level",
				EnvVars: envVar("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:  flagPrintState,
				Usage: "print one reading and exit",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	logger, err := applog.New(applog.Config{
		Level: c.String(flagLogLevel),
		File:  c.String(flagAppLog),
	}, os.Stderr)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.SugaredLogger

	driver, device, err := openDriver(c, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	if err := tec.Init(driver); err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	if c.Bool(flagPrintState) {
		return printState(driver)
	}

	var interlock gpio.Reader
	if pin := c.Int(flagInterlockPin); pin != gpio.Disabled {
		r, err := gpio.NewRealReader(c.String(flagInterlockChip), pin)
		if err != nil {
			return fmt.Errorf("init interlock: %w", err)
		}
		defer r.Close()
		interlock = r
	}

	cfg := session.DefaultConfig()
	cfg.PollInterval = c.Duration(flagPoll)
	cfg.DispatchInterval = c.Duration(flagDispatch)
	cfg.HistorySize = c.Int(flagHistory)
	cfg.MaxPollErrors = c.Int(flagMaxPollErrors)
	cfg.Logger = log
	sess := session.New(driver, cfg)

	httpAddr := c.String(flagHTTP)
	broker := c.String(flagBroker)
	tracker := status.NewTracker(time.Now(), status.Config{
		Device:      device,
		PollMs:      cfg.PollInterval.Milliseconds(),
		DispatchMs:  cfg.DispatchInterval.Milliseconds(),
		HistorySize: cfg.HistorySize,
		DebounceMs:  c.Duration(flagDebounce).Milliseconds(),
		HeartbeatMs: c.Duration(flagHeartbeat).Milliseconds(),
		Broker:      broker,
		HTTPPort:    httpAddr,
		LogDir:      c.String(flagLogDir),
	})
	sess.Subscribe(tracker)

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	var outbox outboxStats
	if broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Config{Broker: broker, Logger: log})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		if err := p.SubscribeCommands(func(cmds []command.Command) {
			sess.Submit(cmds...)
		}); err != nil {
			log.Warnw("command subscription failed", "error", err)
		}
		publisher, mqttStatus, outbox = p, p, p
	}

	// The data log opens a file, so it starts after the last step that can
	// fail.
	dlog := datalog.New(c.String(flagLogDir), datalog.WithLogger(log))
	defer dlog.Close()
	if c.Bool(flagLogging) {
		if err := dlog.Enable(c.String(flagLogPrefix)); err != nil {
			return fmt.Errorf("start data log: %w", err)
		}
	}
	sess.Subscribe(dlog)

	var forwarder *mqtt.Forwarder
	if publisher != nil {
		forwarder = mqtt.NewForwarder(publisher, c.Int(flagPublishEvery), forwarderQueue, log)
		sess.Subscribe(forwarder)
	}

	var srv *web.Server
	var hub *web.Hub
	if httpAddr != "" {
		hub = web.NewHub(log)
		sess.Subscribe(hub)
		srv = web.New(httpAddr, tracker, sess, dlog, hub, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server failed", "error", err)
			}
		}()
		log.Infow("http status server listening", "addr", httpAddr)
	}

	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      mqtt.EventStartup,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warnw("failed to publish startup event", "error", err)
		}
	}

	sess.Start()
	log.Infow("started", "device", device, "broker", broker, "interlock", interlock != nil)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lc := loopConfig{
		Interlock:  interlock,
		Ctrl:       sess,
		DataLog:    dlog,
		Publisher:  publisher,
		MQTTStatus: mqttStatus,
		Outbox:     outbox,
		Tracker:    tracker,
		Debounce:   c.Duration(flagDebounce),
		Heartbeat:  c.Duration(flagHeartbeat),
		Logger:     log,
	}
	// Typed nils must not reach the interfaces.
	if forwarder != nil {
		lc.Forwarder = forwarder
	}
	if hub != nil {
		lc.Stream = hub
	}
	loopErr := runLoop(lc, time.Now, ticker.C, sigCh)

	return multierr.Combine(loopErr, shutdown(srv, sess, log))
}

// shutdown stops the web server before the session so no command arrives
// after the loops have exited. Closing the session closes its subscribers,
// which flushes the data log.
func shutdown(srv *web.Server, sess *session.Session, log *zap.SugaredLogger) error {
	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = multierr.Append(err, srv.Shutdown(ctx))
		cancel()
	}
	err = multierr.Append(err, sess.Close())
	if err != nil {
		log.Warnw("shutdown", "error", err)
	}
	return err
}

// openDriver opens the simulated or serial controller and returns it with
// a description for the status page.
func openDriver(c *cli.Context, log *zap.SugaredLogger) (tec.Driver, string, error) {
	if c.Bool(flagSimulation) {
		log.Infow("using simulated controller")
		return tec.NewSimDriver(nil), "simulation", nil
	}

	port := c.String(flagPort)
	if port == "" {
		p, err := tec.FindPort(c.String(flagSerialNumber))
		if err != nil {
			return nil, "", err
		}
		port = p
	}
	d, err := tec.OpenSerial(port)
	if err != nil {
		return nil, "", err
	}
	log.Infow("opened controller", "port", port)
	return d, port, nil
}

func printState(d tec.Driver) error {
	sp, err := d.SetPoint()
	if err != nil {
		return fmt.Errorf("read set-point: %w", err)
	}
	t1, err := d.Temperature()
	if err != nil {
		return fmt.Errorf("read temperature 1: %w", err)
	}
	t2, err := d.Temperature2()
	if err != nil {
		return fmt.Errorf("read temperature 2: %w", err)
	}
	out, err := d.Output()
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}
	fmt.Printf("set_point=%.2f temperature1=%.2f temperature2=%.2f output=%.2f\n", sp, t1, t2, out)
	return nil
}
