package opcua

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
)

// Config captures the details needed to host or reach the sensor address space.
type Config struct {
	Endpoint        string `yaml:"endpoint"`
	Namespace       string `yaml:"namespace"`
	ServerName      string `yaml:"server_name"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SecurityMode    string `yaml:"security_mode"`
	SecurityPolicy  string `yaml:"security_policy"`
	ApplicationName string `yaml:"application_name"`
}

func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "opc.tcp://0.0.0.0:4840"
	}
	if c.Namespace == "" {
		c.Namespace = domain.Namespace
	}
	if c.ServerName == "" {
		c.ServerName = "OPC UA Gateway Server"
	}
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "Sensor Simulator"
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if _, _, err := splitEndpoint(c.Endpoint); err != nil {
		return err
	}
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	return nil
}

// splitEndpoint extracts host and port from an opc.tcp:// URL.
func splitEndpoint(endpoint string) (string, int, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", 0, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "opc.tcp" {
		return "", 0, fmt.Errorf("endpoint %q: scheme must be opc.tcp", endpoint)
	}
	port := 4840
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("endpoint %q: bad port: %w", endpoint, err)
		}
	}
	return u.Hostname(), port, nil
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}
