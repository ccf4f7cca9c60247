package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the broker connection settings shared by publisher and subscriber.
type Config struct {
	ServerURL   string        `yaml:"server_url"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	KeepAlive   uint16        `yaml:"keep_alive"` // seconds between keepalive packets
	QoS         byte          `yaml:"qos"`        // qos used when publishing and subscribing
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (c *Config) ApplyDefaults(clientID string) {
	if c.ServerURL == "" {
		c.ServerURL = "mqtt://mqtt-broker:1883"
	}
	if c.ClientID == "" {
		c.ClientID = clientID
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 60
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if _, err := c.brokerURL(); err != nil {
		return err
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

func (c *Config) brokerURL() (*url.URL, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", c.ServerURL, err)
	}
	switch u.Scheme {
	case "mqtt", "tcp":
	default:
		return nil, fmt.Errorf("server url %q: unsupported scheme %q", c.ServerURL, u.Scheme)
	}
	if u.Port() == "" {
		u.Host += ":1883"
	}
	return u, nil
}
