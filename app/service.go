package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kilianp07/kenter-mqtt/auth"
	"github.com/kilianp07/kenter-mqtt/config"
	"github.com/kilianp07/kenter-mqtt/core/events"
	coremetrics "github.com/kilianp07/kenter-mqtt/core/metrics"
	coremon "github.com/kilianp07/kenter-mqtt/core/monitoring"
	"github.com/kilianp07/kenter-mqtt/core/scheduler"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
	"github.com/kilianp07/kenter-mqtt/infra/metrics"
	"github.com/kilianp07/kenter-mqtt/infra/monitoring"
	"github.com/kilianp07/kenter-mqtt/infra/mqtt"
	"github.com/kilianp07/kenter-mqtt/internal/eventbus"
	"github.com/kilianp07/kenter-mqtt/kenter"
)

// Service wires the token client, the Kenter fetcher, the MQTT publisher and
// the scheduler together.
type Service struct {
	Tokens    *auth.ClientCred
	Fetcher   *kenter.Fetcher
	Publisher *mqtt.Publisher
	Scheduler *scheduler.Scheduler

	cfg     *config.Config
	bus     *eventbus.Bus[events.CycleEvent]
	sink    coremetrics.MetricsSink
	log     logger.Logger
	logFile io.Closer
}

// New creates a Service from the configuration. The broker does not need to
// be reachable yet.
func New(cfg *config.Config) (*Service, error) {
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	var logFile io.Closer
	if cfg.Log.File != "" {
		c, err := logger.SetFile(cfg.Log.FileOptions())
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
		logFile = c
	}
	logg := logger.New("service")
	for _, name := range cfg.Defaulted {
		logg.Infof("%s not set, using default", name)
	}

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	tokens := auth.NewClientCred(cfg.Kenter.AuthConf(), auth.WithLogger(logger.New("auth")))
	client := kenter.NewClient(cfg.Kenter.APIURL, cfg.Kenter.RequestTimeout, logger.New("kenter"))
	fetcher := kenter.NewFetcher(client, tokens, cfg.Kenter.Retry, logger.New("fetcher"))

	query := cfg.Kenter.Query()
	pub, err := mqtt.NewPublisher(cfg.MQTT, query.MeteringPointID, logger.New("mqtt"))
	if err != nil {
		return nil, fmt.Errorf("mqtt publisher: %w", err)
	}

	schedCfg, err := cfg.Scheduler.Build(query)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	bus := eventbus.New[events.CycleEvent](32)
	sched, err := scheduler.New(schedCfg, fetcher, pub, bus, logger.New("scheduler"))
	if err != nil {
		pub.Close()
		return nil, err
	}

	return &Service{
		Tokens:    tokens,
		Fetcher:   fetcher,
		Publisher: pub,
		Scheduler: sched,
		cfg:       cfg,
		bus:       bus,
		sink:      sink,
		log:       logg,
		logFile:   logFile,
	}, nil
}

// Run polls until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	collected := metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("metrics"))
	if addr := s.cfg.Metrics.Addr; addr != "" {
		go func() {
			defer coremon.Recover()
			if err := metrics.StartPromServer(ctx, addr, nil, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	err := s.Scheduler.Run(ctx)
	<-collected
	return err
}

// RunOnce runs a single cycle and records it before returning.
func (s *Service) RunOnce(ctx context.Context) error {
	ev := s.Scheduler.RunCycle(ctx)
	if err := metrics.Record(s.sink, ev); err != nil {
		s.log.Errorf("record cycle %s: %v", ev.ID, err)
	}
	return ev.Err
}

// Close marks the bridge offline, disconnects and flushes pending reports.
func (s *Service) Close() {
	s.Publisher.Close()
	s.bus.Close()
	if c, ok := s.sink.(coremetrics.Closer); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}
