package bootstrap

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"smartbin-backend/internal/alerts"
	"smartbin-backend/internal/config"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/readings"
	"smartbin-backend/internal/store"
	"smartbin-backend/internal/trigger"
)

const consumerRestartDelay = 5 * time.Second

// Pipeline is the ingestion path: Service stores a reading and fires
// reading-created, the trigger delivers it to Processor, and Processor
// drives the alert Manager.
type Pipeline struct {
	Manager   *alerts.Manager
	Processor *readings.Processor
	Service   *readings.Service

	cfg        *config.Config
	dispatcher *trigger.Dispatcher
	publisher  *trigger.KafkaPublisher
	done       chan struct{}
	log        zerolog.Logger
}

// NewPipeline wires the pipeline over st. Kafka carries reading-created
// when enabled; otherwise an in-process dispatcher does.
func NewPipeline(cfg *config.Config, st store.Store, bins store.BinRegistry, alertOpts []alerts.Option, listeners ...readings.Listener) (*Pipeline, error) {
	opts := append([]alerts.Option{
		alerts.WithPolicy(alerts.Policy{WarningPct: cfg.Alerts.WarningPct, FullPct: cfg.Alerts.FullPct}),
	}, alertOpts...)
	manager := alerts.NewManager(st, opts...)
	processor := readings.NewProcessor(bins, st, manager, listeners...)

	p := &Pipeline{
		Manager:   manager,
		Processor: processor,
		cfg:       cfg,
		done:      make(chan struct{}),
		log:       logger.WithComponent("pipeline"),
	}

	if cfg.Kafka.Enabled {
		publisher, err := trigger.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		p.publisher = publisher
		p.Service = readings.NewService(st, publisher)
	} else {
		p.dispatcher = trigger.NewDispatcher(processor.Handle, trigger.Config{
			Workers:   cfg.Trigger.Workers,
			QueueSize: cfg.Trigger.QueueSize,
		})
		p.Service = readings.NewService(st, p.dispatcher)
	}
	return p, nil
}

// Start begins delivering reading-created events.
func (p *Pipeline) Start(ctx context.Context) {
	if p.dispatcher != nil {
		p.dispatcher.Start()
		close(p.done)
		return
	}
	go p.consume(ctx)
}

// consume runs the Kafka consumer. A consumer that stops on an
// unprocessed message is closed and recreated so the group redelivers
// from the last committed offset.
func (p *Pipeline) consume(ctx context.Context) {
	defer close(p.done)
	for {
		consumer, err := trigger.NewKafkaConsumer(p.cfg.Kafka.Brokers, p.cfg.Kafka.Topic, p.cfg.Kafka.GroupID, p.Processor.Handle)
		if err != nil {
			p.log.Error().Err(err).Msg("❌ Kafka consumer could not be created")
			return
		}
		err = consumer.Run(ctx)
		consumer.Close()
		if ctx.Err() != nil {
			return
		}
		p.log.Error().Err(err).Dur("retry_in", consumerRestartDelay).Msg("⚠️ Kafka consumer stopped, restarting")
		select {
		case <-time.After(consumerRestartDelay):
		case <-ctx.Done():
			return
		}
	}
}

// Stop drains in-flight events. The Kafka consumer stops when the ctx
// passed to Start is cancelled.
func (p *Pipeline) Stop(ctx context.Context) {
	if p.dispatcher != nil {
		p.dispatcher.Stop(ctx)
	}
	if p.publisher != nil {
		if err := p.publisher.Close(); err != nil {
			p.log.Warn().Err(err).Msg("Kafka publisher close failed")
		}
		select {
		case <-p.done:
		case <-ctx.Done():
		}
	}
}
