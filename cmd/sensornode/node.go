package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sensornode/internal/process"
	"github.com/nerrad567/gray-logic-sensornode/internal/scheduler"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
	"github.com/nerrad567/gray-logic-sensornode/internal/status"
	"github.com/nerrad567/gray-logic-sensornode/internal/timesync"
	"github.com/nerrad567/gray-logic-sensornode/internal/wireless"
	"github.com/nerrad567/gray-logic-sensornode/migrations"
)

// flushTimeout bounds one outbox flush after the session comes back.
const flushTimeout = time.Minute

// node is the wired component graph of a running sensor node.
type node struct {
	cfg *config.Config
	log *logging.Logger
	clk clock.Clock

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	db       *database.DB
	influx   *influxdb.Client
	mqtt     *mqtt.Client
	orch     *bringup.Orchestrator
	bridge   *bringup.Bridge
	station  *wireless.Station
	wpa      *process.Supervisor
	reporter *sensor.Reporter
	sched    *scheduler.Scheduler
	status   *status.Server

	// baseCtx parents work started from orchestrator callbacks.
	baseCtx context.Context
	flushes sync.WaitGroup

	closers []func()
}

// newNode opens storage, builds every component and connects the
// callbacks between them. Nothing is started; see run.
func newNode(ctx context.Context, cfg *config.Config, log *logging.Logger) (n *node, err error) {
	n = &node{cfg: cfg, log: log, clk: clock.System(), baseCtx: ctx}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	n.registry = prometheus.NewRegistry()
	n.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	n.metrics = metrics.New(n.registry)

	if err = n.openStorage(ctx); err != nil {
		return nil, err
	}
	if err = n.buildReporter(ctx); err != nil {
		return nil, err
	}
	if err = n.buildBringup(ctx); err != nil {
		return nil, err
	}
	if err = n.buildScheduler(); err != nil {
		return nil, err
	}
	if err = n.buildStatus(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *node) deferClose(fn func()) {
	n.closers = append(n.closers, fn)
}

// close runs the deferred shutdown steps in reverse order.
func (n *node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
	n.closers = nil
}

func (n *node) openStorage(ctx context.Context) error {
	db, err := database.Open(n.cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	n.db = db
	n.deferClose(func() {
		n.log.Info("closing database")
		if err := db.Close(); err != nil {
			n.log.Error("error closing database", "error", err)
		}
	})
	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	n.log.Info("database ready", "path", db.Path())

	if !n.cfg.InfluxDB.Enabled {
		n.log.Info("InfluxDB mirror disabled")
		return nil
	}
	influx, err := influxdb.New(n.cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("creating InfluxDB client: %w", err)
	}
	influx.SetOnError(func(err error) {
		n.log.Warn("InfluxDB write error", "error", err)
	})
	n.influx = influx
	n.deferClose(func() {
		n.log.Info("closing InfluxDB client")
		if err := influx.Close(); err != nil {
			n.log.Error("error closing InfluxDB", "error", err)
		}
	})
	n.log.Info("InfluxDB mirror enabled", "url", n.cfg.InfluxDB.URL, "bucket", n.cfg.InfluxDB.Bucket)
	return nil
}

func (n *node) buildReporter(ctx context.Context) error {
	n.mqtt = mqtt.New(n.cfg.MQTT, n.cfg.Node.ID)
	n.mqtt.SetLogger(n.log.With("component", "mqtt"))

	driver, err := sensor.NewDriver(n.cfg.Sensor, n.clk)
	if err != nil {
		return fmt.Errorf("creating sensor driver: %w", err)
	}
	reporter, err := sensor.NewReporter(sensor.ReporterConfig{
		NodeID: n.cfg.Node.ID,
		Topic:  n.mqtt.Topics().Temperature(),
		QoS:    byte(n.cfg.MQTT.QoS),
		Format: n.cfg.MQTT.PayloadFormat,
	}, driver, n.clk)
	if err != nil {
		return fmt.Errorf("creating reporter: %w", err)
	}
	reporter.SetLogger(n.log.With("component", "sensor"))
	reporter.SetMetrics(n.metrics)
	reporter.SetOutbox(sensor.NewSQLiteOutbox(n.db.DB))
	if n.influx != nil {
		reporter.SetMirror(n.influx)
	}
	if err := reporter.Init(ctx); err != nil {
		return fmt.Errorf("initialising sensor: %w", err)
	}
	n.reporter = reporter
	return nil
}

func (n *node) buildBringup(ctx context.Context) error {
	source, err := timesync.NewSource(timesync.SourceConfig{
		Kind:      n.cfg.TimeSync.Source,
		Servers:   n.cfg.TimeSync.Servers,
		MaxOffset: n.cfg.GetTimeSyncMaxOffset(),
	})
	if err != nil {
		return fmt.Errorf("creating clock sync source: %w", err)
	}
	gate := timesync.NewGate(source, n.clk, timesync.GateConfig{
		PollInterval: n.cfg.GetTimeSyncPollInterval(),
		MaxPolls:     n.cfg.TimeSync.MaxPolls,
	})
	gate.SetLogger(n.log.With("component", "timesync"))

	// The wireless side reports through the bridge, which needs the
	// orchestrator, which needs the wireless side: bind late.
	notify := wireless.NotifierFunc(func(note bringup.Notification) {
		n.bridge.Notify(note)
	})

	var link bringup.Wireless
	if n.cfg.Wireless.Enabled {
		station := wireless.NewStation(n.cfg.Wireless, notify)
		station.SetLogger(n.log.With("component", "wireless"))
		if n.cfg.Wireless.Supplicant.Managed {
			if err := n.startSupplicant(ctx, station); err != nil {
				return err
			}
		}
		if err := station.Configure(ctx); err != nil {
			return fmt.Errorf("configuring wireless network: %w", err)
		}
		n.station = station
		link = station
	} else {
		n.log.Info("wireless station disabled, using existing interface address",
			"interface", n.cfg.Wireless.Interface)
		link = wireless.NewStatic(n.cfg.Wireless.Interface, notify)
	}

	wInitial, wMax := n.cfg.GetWirelessRetryDelays()
	bInitial, bMax := n.cfg.GetBrokerRetryDelays()
	orch, err := bringup.NewOrchestrator(bringup.Config{
		WirelessRetries: n.cfg.Wireless.MaxRetries,
		BrokerRetries:   n.cfg.MQTT.Reconnect.MaxAttempts,
		WirelessBackoff: bringup.Backoff{Initial: wInitial, Max: wMax},
		BrokerBackoff:   bringup.Backoff{Initial: bInitial, Max: bMax},
	}, bringup.Deps{
		Wireless: link,
		Broker:   brokerAdapter{client: n.mqtt},
		Gate:     gate,
		Clock:    n.clk,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	orch.SetLogger(n.log.With("component", "bringup"))
	orch.SetMetrics(n.metrics)
	n.orch = orch

	n.bridge = bringup.NewBridge(orch)
	n.bridge.SetLogger(n.log.With("component", "bridge"))
	n.bridge.SetMetrics(n.metrics)

	n.mqtt.SetOnConnect(func() {
		n.bridge.Notify(bringup.Notification{Source: bringup.SourceBroker, Kind: bringup.KindSessionEstablished})
	})
	n.mqtt.SetOnConnectError(func(err error) {
		n.bridge.Notify(bringup.Notification{Source: bringup.SourceBroker, Kind: bringup.KindSessionError, Payload: err})
	})
	n.mqtt.SetOnConnectionLost(func(err error) {
		n.bridge.Notify(bringup.Notification{Source: bringup.SourceBroker, Kind: bringup.KindSessionLost, Payload: err})
	})

	n.reporter.SetClockTrusted(orch.ClockTrusted)
	orch.OnReady(n.onReady)
	orch.OnTransition(func(_, to bringup.State) {
		if to == bringup.StateReady {
			n.flushOutbox()
		}
	})
	return nil
}

// onReady runs once, on the orchestrator's loop, with the first session.
func (n *node) onReady(session bringup.Session) {
	if err := n.reporter.Start(session); err != nil {
		n.log.Error("reporter could not start", "error", err)
		return
	}
	n.flushOutbox()

	// Subscribing waits on the broker; keep it off the loop. The client
	// restores the subscription on every later session.
	go func() {
		topic := n.mqtt.Topics().AllCommands()
		if err := n.mqtt.Subscribe(topic, byte(n.cfg.MQTT.QoS), n.reporter.HandleCommand); err != nil {
			n.log.Warn("command subscription failed", "topic", topic, "error", err)
		}
	}()
}

// flushOutbox drains parked readings in the background.
func (n *node) flushOutbox() {
	n.flushes.Add(1)
	go func() {
		defer n.flushes.Done()
		ctx, cancel := context.WithTimeout(n.baseCtx, flushTimeout)
		defer cancel()
		if _, err := n.reporter.FlushOutbox(ctx); err != nil && !errors.Is(err, context.Canceled) {
			n.log.Warn("outbox flush stopped", "error", err)
		}
	}()
}

func (n *node) buildScheduler() error {
	sched, err := scheduler.New(scheduler.Config{
		IntervalMinutes: n.cfg.Schedule.IntervalMinutes,
		PollInterval:    n.cfg.GetSchedulePollInterval(),
		Location:        n.cfg.Location(),
	}, n.clk, n.reporter)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	sched.SetLogger(n.log.With("component", "scheduler"))
	sched.SetMetrics(n.metrics)
	n.sched = sched
	return nil
}

// startSupplicant runs wpa_supplicant under supervision and waits for its
// control interface before the station is configured.
func (n *node) startSupplicant(ctx context.Context, station *wireless.Station) error {
	sc := n.cfg.Wireless.Supplicant
	sup := process.New(process.Config{
		Name:         "wpa_supplicant",
		Binary:       sc.Binary,
		Args:         wireless.SupplicantArgs(n.cfg.Wireless),
		RestartDelay: n.cfg.GetSupplicantRestartDelay(),
		MaxRestarts:  sc.MaxRestarts,
		Ready:        station.Ping,
		OnExit: func(err error) {
			n.log.Warn("wpa_supplicant exited", "error", err)
		},
	})
	sup.SetLogger(n.log.With("component", "wpa_supplicant"))
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("starting wpa_supplicant: %w", err)
	}
	n.wpa = sup
	n.deferClose(func() {
		if err := sup.Stop(); err != nil {
			n.log.Warn("stopping wpa_supplicant", "error", err)
		}
	})
	return nil
}

func (n *node) buildStatus() error {
	if !n.cfg.Status.Enabled {
		return nil
	}
	checks := map[string]status.HealthChecker{
		"database": n.db,
		"mqtt":     n.mqtt,
	}
	if n.influx != nil {
		checks["influxdb"] = n.influx
	}
	if n.wpa != nil {
		checks["wpa_supplicant"] = n.wpa
	}
	srv, err := status.New(status.Deps{
		Config:   n.cfg.Status,
		Logger:   n.log.With("component", "status"),
		State:    n.orch,
		Schedule: n.sched,
		Readings: n.reporter,
		Gatherer: n.registry,
		Checks:   checks,
		NodeID:   n.cfg.Node.ID,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating status server: %w", err)
	}
	n.status = srv
	return nil
}

// run starts every loop and blocks until ctx ends or bring-up fails.
// A terminal bring-up failure is returned so the supervisor restarts the
// node with fresh retry budgets.
func (n *node) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if n.status != nil {
		if err := n.status.Start(ctx); err != nil {
			return fmt.Errorf("starting status server: %w", err)
		}
		n.deferClose(func() {
			if err := n.status.Close(); err != nil {
				n.log.Error("error closing status server", "error", err)
			}
		})
	}

	var wg sync.WaitGroup
	goLoop := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				n.log.Error("loop exited", "loop", name, "error", err)
			}
		}()
	}

	goLoop("bringup", n.orch.Run)
	if n.station != nil {
		goLoop("wireless", func(ctx context.Context) error {
			err := n.station.Watch(ctx)
			if errors.Is(err, wireless.ErrUnsupported) {
				n.log.Warn("link watching unavailable; association events will not be reported")
				return nil
			}
			return err
		})
	}
	goLoop("scheduler", func(ctx context.Context) error {
		return n.sched.Run(ctx, n.orch.Begin())
	})

	if err := n.orch.Start(); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("starting bring-up: %w", err)
	}
	n.log.Info("bring-up started")

	var result error
	select {
	case <-ctx.Done():
		n.log.Info("shutdown signal received, cleaning up")
	case <-n.orch.Failed():
		result = fmt.Errorf("bring-up failed: %w", n.orch.Err())
	}

	cancel()
	wg.Wait()
	n.flushes.Wait()
	n.mqtt.Stop()
	return result
}

// brokerAdapter lends the single MQTT client out as the session handle.
// Publish always goes through the client's current connection, so the
// handle stays valid across reconnects.
type brokerAdapter struct {
	client *mqtt.Client
}

func (b brokerAdapter) Connect(ctx context.Context) (bringup.Session, error) {
	if err := b.client.Connect(ctx); err != nil {
		return nil, err
	}
	return b.client, nil
}

func (b brokerAdapter) Stop(bringup.Session) {
	b.client.Stop()
}
