package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

// Subscriber keeps a managed broker connection and re-subscribes on every
// connection-up, so subscriptions survive reconnects.
type Subscriber struct {
	cfg Config
	log zerolog.Logger

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

func NewSubscriber(cfg Config, log zerolog.Logger) (*Subscriber, error) {
	cfg.ApplyDefaults("mqtt_client-" + uuid.NewString()[:8])
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Subscriber{cfg: cfg, log: log}, nil
}

// Start returns after the first connection is up. handle runs on the client's
// delivery goroutine, one message at a time.
func (s *Subscriber) Start(ctx context.Context, topics []string, handle func(domain.Message)) error {
	u, err := s.cfg.brokerURL()
	if err != nil {
		return err
	}

	subs := make([]paho.SubscribeOptions, len(topics))
	for i, t := range topics {
		subs[i] = paho.SubscribeOptions{Topic: t, QoS: s.cfg.QoS}
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     s.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.log.Info().Msg("mqtt connection up")
			if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: subs,
			}); err != nil {
				s.log.Error().Err(err).Msg("mqtt subscribe failed")
				return
			}
			s.log.Info().Strs("topics", topics).Msg("mqtt subscription made")
		},
		OnConnectError: func(err error) {
			s.log.Error().Err(err).Msg("mqtt connection attempt failed")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					handle(domain.Message{
						Topic: pr.Packet.Topic,
						Body:  pr.Packet.Payload,
					})
					return true, nil
				},
			},
			OnClientError: func(err error) {
				s.log.Error().Err(err).Msg("mqtt client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					s.log.Error().Str("reason", d.Properties.ReasonString).Msg("server requested disconnect")
				} else {
					s.log.Error().Int("reason_code", int(d.ReasonCode)).Msg("server requested disconnect")
				}
			},
		},
	}
	if s.cfg.Username != "" {
		cliCfg.ConnectUsername = s.cfg.Username
		cliCfg.ConnectPassword = []byte(s.cfg.Password)
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("mqtt connection manager: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("mqtt await connection: %w", err)
	}

	s.mu.Lock()
	s.cm = cm
	s.mu.Unlock()
	return nil
}

func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	cm := s.cm
	s.cm = nil
	s.mu.Unlock()

	if cm == nil {
		return nil
	}
	return cm.Disconnect(ctx)
}

var _ ports.Subscriber = (*Subscriber)(nil)
