// Package mqtt subscribes to receiver reports published over MQTT and feeds
// them through the same ingestion path as the HTTP API. Receivers in awkward
// network positions (behind NAT, battery powered) tend to prefer publishing
// to a broker over holding an HTTP target.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/engine"
)

const connectTimeout = 10 * time.Second

// Subscriber bridges one MQTT topic into the engine.
type Subscriber struct {
	cfg    config.MQTTConfig
	engine *engine.Engine
	log    zerolog.Logger
	client pahomqtt.Client
}

// NewSubscriber creates a Subscriber; call Start to connect.
func NewSubscriber(cfg config.MQTTConfig, eng *engine.Engine, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		engine: eng,
		log:    log.With().Str("component", "mqtt").Logger(),
	}
}

// Start connects to the broker and subscribes to the report topic. The paho
// client reconnects on its own; the subscription is restored in the
// OnConnect hook so it survives broker restarts.
func (s *Subscriber) Start() error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	opts.OnConnect = func(c pahomqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, 0, s.handleReport)
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Error().Err(err).Str("topic", s.cfg.Topic).Msg("subscribe failed")
			return
		}
		s.log.Info().Str("broker", s.cfg.Broker).Str("topic", s.cfg.Topic).Msg("subscribed")
	}
	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		s.log.Warn().Err(err).Msg("broker connection lost")
	}

	s.client = pahomqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// Still retrying in the background; not fatal.
		s.log.Warn().Str("broker", s.cfg.Broker).Msg("broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker %s: %w", s.cfg.Broker, err)
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) handleReport(_ pahomqtt.Client, msg pahomqtt.Message) {
	var report engine.Report
	if err := json.Unmarshal(msg.Payload(), &report); err != nil {
		s.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("discarding unparsable report")
		return
	}

	if _, err := s.engine.Ingest(report, time.Now().UnixMilli()); err != nil {
		s.log.Warn().Err(err).Str("receiver", report.Receiver).Msg("mqtt report not merged")
	}
}
