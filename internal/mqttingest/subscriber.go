// Package mqttingest feeds sensor readings published over MQTT into the
// reading service.
package mqttingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
)

const (
	keepAliveSeconds = 30
	minBackoff       = time.Second
	maxBackoff       = 30 * time.Second
)

// Recorder stores a validated reading and fires the trigger.
type Recorder interface {
	Record(ctx context.Context, req models.IngestRequest, source string) (*models.Reading, error)
}

// Config holds the broker connection settings.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
}

// Subscriber keeps an MQTT v5 session subscribed to the readings topic and
// reconnects with backoff when it drops.
type Subscriber struct {
	cfg      Config
	recorder Recorder
	dial     func(ctx context.Context, addr string) (net.Conn, error)
	log      zerolog.Logger
}

func NewSubscriber(cfg Config, recorder Recorder) *Subscriber {
	if cfg.Topic == "" {
		cfg.Topic = "bins/+/readings"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "smartbin-backend"
	}
	return &Subscriber{
		cfg:      cfg,
		recorder: recorder,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		log: logger.WithComponent("mqtt"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		started := time.Now()
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}

		s.log.Warn().
			Err(err).
			Str("broker", s.cfg.Broker).
			Dur("retry_in", backoff).
			Msg("⚠️ MQTT session ended, reconnecting")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Subscriber) session(ctx context.Context) error {
	conn, err := s.dial(ctx, brokerAddr(s.cfg.Broker))
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.Broker, err)
	}

	lost := make(chan error, 2)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				if err := s.handle(ctx, pr.Packet.Topic, pr.Packet.Payload); err != nil {
					s.log.Warn().
						Err(err).
						Str("topic", pr.Packet.Topic).
						Msg("⚠️ MQTT reading rejected")
				}
				// Always handled so the message is acked; bad payloads are not redelivered.
				return true, nil
			},
		},
		OnClientError: func(err error) {
			select {
			case lost <- err:
			default:
			}
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			select {
			case lost <- fmt.Errorf("server disconnect, reason code %d", d.ReasonCode):
			default:
			}
		},
	})

	connack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   s.cfg.ClientID,
		CleanStart: true,
		KeepAlive:  keepAliveSeconds,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if connack.ReasonCode != 0 {
		return fmt.Errorf("connect refused, reason code %d", connack.ReasonCode)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.cfg.Topic, QoS: 1}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("subscribe %s: %w", s.cfg.Topic, err)
	}

	s.log.Info().
		Str("broker", s.cfg.Broker).
		Str("topic", s.cfg.Topic).
		Msg("📡 MQTT subscriber connected")

	select {
	case <-ctx.Done():
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return ctx.Err()
	case err := <-lost:
		return err
	}
}

// handle turns one MQTT message into a recorded reading.
func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) error {
	req, err := parsePayload(topic, payload)
	if err != nil {
		return err
	}
	_, err = s.recorder.Record(ctx, req, models.SourceMQTT)
	return err
}

// mqttPayload mirrors IngestRequest but accepts the bin id from the topic.
type mqttPayload struct {
	BinID     *string  `json:"binId"`
	WeightKg  *float64 `json:"weightKg"`
	Timestamp *string  `json:"timestamp"`
}

func parsePayload(topic string, payload []byte) (models.IngestRequest, error) {
	var p mqttPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "weightKg" {
			return models.IngestRequest{}, &models.ValidationError{Field: "weightKg", Reason: "weightKg must be a non-negative number"}
		}
		return models.IngestRequest{}, &models.ValidationError{Field: "payload", Reason: "payload must be a JSON object"}
	}

	if p.BinID == nil || strings.TrimSpace(*p.BinID) == "" {
		if id := binIDFromTopic(topic); id != "" {
			p.BinID = &id
		}
	}
	return models.IngestRequest{BinID: p.BinID, WeightKg: p.WeightKg, Timestamp: p.Timestamp}, nil
}

// binIDFromTopic extracts {id} from bins/{id}/readings.
func binIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 3 && parts[0] == "bins" && parts[2] == "readings" {
		return parts[1]
	}
	return ""
}

func brokerAddr(broker string) string {
	for _, scheme := range []string{"mqtt://", "tcp://"} {
		broker = strings.TrimPrefix(broker, scheme)
	}
	if _, _, err := net.SplitHostPort(broker); err != nil {
		return net.JoinHostPort(broker, "1883")
	}
	return broker
}
