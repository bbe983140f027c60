package main

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/command"
	"github.com/sweeney/tec-monitor/internal/datalog"
	"github.com/sweeney/tec-monitor/internal/gpio"
	"github.com/sweeney/tec-monitor/internal/logic"
	"github.com/sweeney/tec-monitor/internal/mqtt"
	"github.com/sweeney/tec-monitor/internal/session"
	"github.com/sweeney/tec-monitor/internal/status"
)

// controller is the part of session.Session the run loop uses.
type controller interface {
	Submit(cmds ...command.Command)
	History() session.Series
	Health() session.Health
}

// outboxStats is implemented by mqtt.RealPublisher.
type outboxStats interface {
	Buffered() int
	Dropped() uint64
}

// forwardStats is implemented by mqtt.Forwarder.
type forwardStats interface {
	Sent() uint64
	Dropped() uint64
}

// streamStats is implemented by web.Hub.
type streamStats interface {
	Clients() int
	Dropped() uint64
}

// loopConfig holds the collaborators of runLoop. Everything except Ctrl
// and Tracker may be nil.
type loopConfig struct {
	Interlock  gpio.Reader
	Ctrl       controller
	DataLog    *datalog.Logger
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Outbox     outboxStats
	Forwarder  forwardStats
	Stream     streamStats
	Tracker    *status.Tracker
	Debounce   time.Duration
	Heartbeat  time.Duration
	Logger     *zap.SugaredLogger
}

// runLoop supervises the running session until a signal arrives. On every
// tick it samples the interlock, disables the output when the interlock
// opens, refreshes the status tracker and emits heartbeats.
func runLoop(cfg loopConfig, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	startTime := now()
	detector := logic.NewDetector(cfg.Debounce, startTime)
	wasBaselined := false

	publish := func(event mqtt.SystemEvent) {
		if cfg.Publisher == nil {
			return
		}
		if err := cfg.Publisher.PublishSystem(event); err != nil {
			log.Warnw("failed to publish system event", "event", event.Event, "error", err)
		}
	}

	disableOutput := func(reason string) {
		log.Warnw("interlock open, disabling output", "reason", reason)
		cfg.Ctrl.Submit(command.SetOutputEnable{Enabled: false})
	}

	for {
		select {
		case s := <-sig:
			log.Infow("shutting down", "signal", s.String())
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			refresh(cfg, detector)
			publish(mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      mqtt.EventShutdown,
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(cfg.Tracker.Snapshot(), mqtt.EventShutdown, signalName),
			})
			return nil

		case <-tick:
			t := now()

			if cfg.Interlock != nil {
				closed, err := cfg.Interlock.Read()
				if err != nil {
					log.Warnw("interlock read failed", "error", err)
				} else if event := detector.Process(logic.Input{Closed: closed, Time: t}); event != nil {
					log.Infow("interlock event", "event", event.Type, "state", event.State)
					if event.Type == logic.EventOpen {
						disableOutput("transition")
					}
					refresh(cfg, detector)
					publish(mqtt.SystemEvent{
						Timestamp:  event.Timestamp,
						Event:      string(event.Type),
						Retained:   true,
						RawPayload: status.FormatStatusEvent(cfg.Tracker.Snapshot(), string(event.Type), ""),
					})
				}

				// An interlock that is already open at startup never produces
				// a transition.
				if !wasBaselined && detector.IsBaselined() {
					wasBaselined = true
					log.Infow("interlock baselined", "state", detector.CurrentState())
					if detector.CurrentState() == logic.StateOpen {
						disableOutput("baseline")
					}
				}
			}

			refresh(cfg, detector)

			if hb := detector.CheckHeartbeat(t, cfg.Heartbeat); hb != nil {
				log.Infow("heartbeat", "uptime", hb.Uptime, "opened", hb.Counts.Opened, "closed", hb.Counts.Closed)
				publish(mqtt.SystemEvent{
					Timestamp:  hb.Timestamp,
					Event:      mqtt.EventHeartbeat,
					RawPayload: status.FormatStatusEvent(cfg.Tracker.Snapshot(), mqtt.EventHeartbeat, ""),
				})
			}
		}
	}
}

// refresh copies session, data log, interlock, MQTT and stream state into
// the tracker.
func refresh(cfg loopConfig, detector *logic.Detector) {
	t := cfg.Tracker
	t.SetHealth(cfg.Ctrl.Health())

	if sum, err := logic.Summarize(cfg.Ctrl.History().Temperature1); err == nil {
		t.SetWindow(&sum)
	} else {
		t.SetWindow(nil)
	}

	if cfg.DataLog != nil {
		t.SetLogging(status.LoggingState{
			Enabled: cfg.DataLog.Enabled(),
			Prefix:  cfg.DataLog.Prefix(),
			Path:    cfg.DataLog.Path(),
			Lines:   cfg.DataLog.Lines(),
		})
	}

	t.SetInterlock(status.InterlockState{
		Enabled:   cfg.Interlock != nil,
		State:     detector.CurrentState(),
		Baselined: detector.IsBaselined(),
		Counts:    detector.EventCountsSnapshot(),
	})

	if cfg.MQTTStatus != nil {
		t.SetMQTTConnected(cfg.MQTTStatus.IsConnected())
	}

	var m status.MQTTStats
	if cfg.Forwarder != nil {
		m.Sent = cfg.Forwarder.Sent()
		m.QueueDropped = cfg.Forwarder.Dropped()
	}
	if cfg.Outbox != nil {
		m.Buffered = cfg.Outbox.Buffered()
		m.Dropped = cfg.Outbox.Dropped()
	}
	t.SetMQTTStats(m)

	if cfg.Stream != nil {
		t.SetStream(status.StreamState{Clients: cfg.Stream.Clients(), Dropped: cfg.Stream.Dropped()})
	}
}
