package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// Publisher pushes measurements and daily totals to the broker over a single
// persistent paho connection. Nothing is buffered while the connection is
// down: the batch fails with an Unreachable PublishError.
type Publisher struct {
	cfg           Config
	meteringPoint string
	cli           pahoClient
	log           logger.Logger

	mu        sync.Mutex
	announced map[string]bool
	refused   error // last CONNACK refusal
	closed    bool

	connecting atomic.Bool
	wg         sync.WaitGroup
}

type measurementPayload struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

type dailyPayload struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Date    string  `json:"date"`
	Samples int     `json:"samples"`
}

// NewPublisher creates the paho client and makes a first connection attempt.
// A broker that is down at startup is not fatal; the connection is retried
// in the background and by the next Publish.
func NewPublisher(cfg Config, meteringPoint string, log logger.Logger) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		cfg:           cfg,
		meteringPoint: meteringPoint,
		log:           log,
		announced:     make(map[string]bool),
	}
	availability := AvailabilityTopic(cfg.TopicPrefix, meteringPoint)
	opts.SetWill(availability, availabilityOffline, 1, true)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker %s", cfg.BrokerURL())
	})
	p.cli = newMQTTClient(opts)
	if err := p.connect(); err != nil {
		log.Errorw("initial MQTT connect failed", err, map[string]any{"broker": cfg.BrokerURL()})
		p.reconnect()
	}
	return p, nil
}

func (p *Publisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.refused = nil
	// Discovery is re-announced on every new connection.
	p.announced = make(map[string]bool)
	p.mu.Unlock()

	topic := AvailabilityTopic(p.cfg.TopicPrefix, p.meteringPoint)
	tok := p.cli.Publish(topic, 1, true, availabilityOnline)
	if !tok.WaitTimeout(p.cfg.PublishTimeout) || tok.Error() != nil {
		p.log.Warnf("availability publish on %s failed: %v", topic, tok.Error())
	}
	p.log.Infof("connected to MQTT broker %s", p.cfg.BrokerURL())
}

func (p *Publisher) connect() error {
	tok := p.cli.Connect()
	if !tok.WaitTimeout(p.cfg.ConnectTimeout + time.Second) {
		return &PublishError{Kind: KindUnreachable, Err: fmt.Errorf("connect timed out after %s", p.cfg.ConnectTimeout)}
	}
	if err := tok.Error(); err != nil {
		perr := classifyConnectErr(err)
		if perr.Kind == KindAuthFailed {
			p.mu.Lock()
			p.refused = err
			p.mu.Unlock()
		}
		return perr
	}
	return nil
}

// reconnect starts a single background connection attempt. paho only
// reconnects on its own once a first connection succeeded.
func (p *Publisher) reconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.connecting.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.connecting.Store(false)
		if err := p.connect(); err != nil {
			p.log.Debugw("MQTT reconnect attempt failed", map[string]any{"error": err.Error()})
		}
	}()
}

func (p *Publisher) ensureConnected() *PublishError {
	if p.cli.IsConnectionOpen() {
		return nil
	}
	if !p.cli.IsConnected() {
		// not in paho's auto-reconnect loop
		p.reconnect()
	}
	p.mu.Lock()
	refused := p.refused
	p.mu.Unlock()
	if refused != nil {
		return &PublishError{Kind: KindAuthFailed, Err: refused}
	}
	return &PublishError{Kind: KindUnreachable, Err: errors.New("connection to " + p.cfg.BrokerURL() + " is down")}
}

// Publish sends every measurement to <prefix>/<metering point>/<channel> in
// the given order. The batch stops at the first failure; Published on the
// returned PublishError counts the messages already delivered.
func (p *Publisher) Publish(ctx context.Context, meteringPoint string, ms []model.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	if perr := p.ensureConnected(); perr != nil {
		return perr
	}
	for i, m := range ms {
		topic := MeasurementTopic(p.cfg.TopicPrefix, meteringPoint, m.Channel)
		payload, err := json.Marshal(measurementPayload{
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
			Value:     m.Value,
			Unit:      m.Unit,
		})
		if err != nil {
			return fmt.Errorf("encode measurement: %w", err)
		}
		if perr := p.publish(ctx, topic, false, payload); perr != nil {
			perr.Published = i
			return perr
		}
	}
	p.log.Debugw("published measurements", map[string]any{
		"metering_point": meteringPoint,
		"count":          len(ms),
	})
	return nil
}

// PublishTotals publishes the retained daily total of each channel, announcing
// the channel sensor to Home Assistant first when discovery is enabled.
func (p *Publisher) PublishTotals(ctx context.Context, meteringPoint string, totals []model.DailyTotal) error {
	if len(totals) == 0 {
		return nil
	}
	if perr := p.ensureConnected(); perr != nil {
		return perr
	}
	for i, t := range totals {
		if !p.cfg.DisableDiscovery {
			if perr := p.announce(ctx, meteringPoint, t); perr != nil {
				perr.Published = i
				return perr
			}
		}
		payload, err := json.Marshal(dailyPayload{
			Value:   t.Value,
			Unit:    t.Unit,
			Date:    t.Day.Format("2006-01-02"),
			Samples: t.Samples,
		})
		if err != nil {
			return fmt.Errorf("encode daily total: %w", err)
		}
		if perr := p.publish(ctx, DailyTopic(p.cfg.TopicPrefix, meteringPoint, t.Channel), true, payload); perr != nil {
			perr.Published = i
			return perr
		}
	}
	return nil
}

func (p *Publisher) announce(ctx context.Context, meteringPoint string, t model.DailyTotal) *PublishError {
	topic := DiscoveryTopic(p.cfg.DiscoveryPrefix, meteringPoint, t.Channel)
	p.mu.Lock()
	done := p.announced[topic]
	p.mu.Unlock()
	if done {
		return nil
	}
	payload, err := json.Marshal(NewSensorConfig(p.cfg, meteringPoint, t.Channel, t.Unit))
	if err != nil {
		return &PublishError{Kind: KindUnreachable, Topic: topic, Err: err}
	}
	if perr := p.publish(ctx, topic, true, payload); perr != nil {
		return perr
	}
	p.mu.Lock()
	p.announced[topic] = true
	p.mu.Unlock()
	p.log.Infof("announced sensor %s", topic)
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, retained bool, payload []byte) *PublishError {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		wait := p.cfg.PublishTimeout
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < wait {
				wait = left
			}
		}
		if wait <= 0 || ctx.Err() != nil {
			return &PublishError{Kind: KindTimeout, Topic: topic, Err: context.Cause(ctx)}
		}
		tok := p.cli.Publish(topic, p.cfg.QoS, retained, payload)
		if !tok.WaitTimeout(wait) {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("no completion within %s", wait)
			}
			return &PublishError{Kind: KindTimeout, Topic: topic, Err: err}
		}
		lastErr = tok.Error()
		if lastErr == nil {
			return nil
		}
		p.log.Warnf("publish attempt %d on %s failed: %v", attempt+1, topic, lastErr)
		if !p.cli.IsConnectionOpen() {
			break
		}
		if attempt < p.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return &PublishError{Kind: KindTimeout, Topic: topic, Err: ctx.Err()}
			case <-time.After(time.Duration(p.cfg.BackoffMS) * time.Millisecond * time.Duration(1<<attempt)):
			}
		}
	}
	return &PublishError{Kind: KindUnreachable, Topic: topic, Err: lastErr}
}

// Close waits for a pending background connect, marks the bridge offline
// and disconnects.
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()

	if p.cli.IsConnectionOpen() {
		tok := p.cli.Publish(AvailabilityTopic(p.cfg.TopicPrefix, p.meteringPoint), 1, true, availabilityOffline)
		tok.WaitTimeout(time.Second)
	}
	p.cli.Disconnect(250)
	p.log.Infof("disconnected from MQTT broker")
}
