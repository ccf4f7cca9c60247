package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/eclipse/paho.golang/paho"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

// ErrNotConnected is returned by Publish when no bus session is up.
var ErrNotConnected = errors.New("mqtt: not connected")

// Publisher holds at most one broker session. It never reconnects by itself;
// the caller decides when to call Connect again after onLost fires.
type Publisher struct {
	cfg Config

	mu     sync.Mutex
	client *paho.Client
}

func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.ApplyDefaults("opcua_gateway")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Publisher{cfg: cfg}, nil
}

func (p *Publisher) Connect(ctx context.Context, onLost func(error)) error {
	u, err := p.cfg.brokerURL()
	if err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Host, err)
	}

	var (
		once    sync.Once
		cli     *paho.Client
		lostErr error // guarded by p.mu
	)
	lost := func(err error) {
		once.Do(func() {
			p.mu.Lock()
			lostErr = err
			if p.client == cli {
				p.client = nil
			}
			p.mu.Unlock()
			if onLost != nil {
				onLost(err)
			}
		})
	}

	cli = paho.NewClient(paho.ClientConfig{
		ClientID: p.cfg.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			lost(fmt.Errorf("client error: %w", err))
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			if d.Properties != nil {
				lost(fmt.Errorf("server requested disconnect: %s", d.Properties.ReasonString))
				return
			}
			lost(fmt.Errorf("server requested disconnect with reason code %d", d.ReasonCode))
		},
	})

	cp := &paho.Connect{
		KeepAlive:  p.cfg.KeepAlive,
		ClientID:   p.cfg.ClientID,
		CleanStart: true,
	}
	if p.cfg.Username != "" {
		cp.Username = p.cfg.Username
		cp.UsernameFlag = true
		cp.Password = []byte(p.cfg.Password)
		cp.PasswordFlag = true
	}

	ca, err := cli.Connect(ctx, cp)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mqtt connect: %w", err)
	}
	if ca.ReasonCode != 0 {
		_ = conn.Close()
		return fmt.Errorf("mqtt connect refused: reason code %d", ca.ReasonCode)
	}

	return p.adopt(cli, func() error { return lostErr })
}

// adopt stores cli as the live session unless lostErr already reports it dead.
// The caller's lost callback and adopt both hold p.mu.
func (p *Publisher) adopt(cli *paho.Client, lostErr func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := lostErr(); err != nil {
		return fmt.Errorf("mqtt connection lost during connect: %w", err)
	}
	p.client = cli
	return nil
}

// Publish returns once the broker accepted the message (PUBACK for QoS 1+,
// a completed write for QoS 0).
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	cli := p.client
	p.mu.Unlock()
	if cli == nil {
		return ErrNotConnected
	}

	resp, err := cli.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     p.cfg.QoS,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if resp != nil && resp.ReasonCode >= 0x80 {
		return fmt.Errorf("publish %s: reason code %d", topic, resp.ReasonCode)
	}
	return nil
}

func (p *Publisher) Close(context.Context) error {
	p.mu.Lock()
	cli := p.client
	p.client = nil
	p.mu.Unlock()

	if cli == nil {
		return nil
	}
	return cli.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

var _ ports.Publisher = (*Publisher)(nil)
