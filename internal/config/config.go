package config

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Driver names accepted in a host's driver field.
const (
	DriverSSH   = "ssh"
	DriverLocal = "local"
)

// Defaults applied when a host leaves the setting empty.
const (
	DefaultSSHPort        = 22
	DefaultTimeout        = 10 * time.Second
	DefaultCommandTimeout = 30 * time.Second
)

// Config is the effective run configuration decoded from the merged
// documents.
type Config struct {
	Meta    map[string]any        `yaml:"meta,omitempty"`
	Servers map[string]HostConfig `yaml:"servers"`

	// order holds server names in document order; map iteration is random.
	order []string
}

// HostConfig describes a single monitored server.
type HostConfig struct {
	Driver    string          `yaml:"driver,omitempty"`
	Summarize *bool           `yaml:"summarize,omitempty"`
	Meta      map[string]any  `yaml:"meta,omitempty"`
	Config    DriverConfig    `yaml:"config,omitempty"`
	Checks    []CheckConfig   `yaml:"checks,omitempty"`
	Channels  []ChannelConfig `yaml:"channels,omitempty"`
}

// DriverConfig holds connection settings. Only the ssh driver reads them.
type DriverConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	Username       string   `yaml:"username,omitempty"`
	Password       string   `yaml:"password,omitempty"`
	KeyFile        string   `yaml:"key_file,omitempty"`
	KeyPassphrase  string   `yaml:"key_passphrase,omitempty"`
	KnownHosts     string   `yaml:"known_hosts,omitempty"`
	UseAgent       bool     `yaml:"use_agent,omitempty"`
	Timeout        Duration `yaml:"timeout,omitempty"`
	CommandTimeout Duration `yaml:"command_timeout,omitempty"`
}

// CheckConfig is one inspector plus the alarms evaluated against its
// metrics.
type CheckConfig struct {
	Type   string            `yaml:"type"`
	Name   string            `yaml:"name,omitempty"`
	Config map[string]string `yaml:"config,omitempty"`
	Alarms Alarms            `yaml:"alarms,omitempty"`
}

// ChannelConfig is a notification channel.
type ChannelConfig struct {
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config,omitempty"`
}

// Alarm is a named expression evaluated against check metrics.
type Alarm struct {
	Name       string
	Expression string
}

// Alarms is an ordered alarm list decoded from a YAML mapping of
// name -> expression.
type Alarms []Alarm

// UnmarshalYAML keeps the mapping order so alarms fire in the order written.
func (a *Alarms) UnmarshalYAML(value *yaml.Node) error {
	value = resolve(value)
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: alarms must be a mapping of name to expression", value.Line)
	}
	out := make(Alarms, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := resolve(value.Content[i]), resolve(value.Content[i+1])
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: alarm %q must be a string expression", v.Line, k.Value)
		}
		out = append(out, Alarm{Name: k.Value, Expression: v.Value})
	}
	*a = out
	return nil
}

// MarshalYAML writes alarms back as an ordered mapping.
func (a Alarms) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, al := range a {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: al.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: al.Expression},
		)
	}
	return n, nil
}

// Duration decodes Go duration strings ("10s", "1m30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Host pairs a server name with its configuration.
type Host struct {
	Name   string
	Config HostConfig
}

// Hosts returns every configured server in document order.
func (c *Config) Hosts() []Host {
	hosts := make([]Host, 0, len(c.order))
	for _, name := range c.order {
		hosts = append(hosts, Host{Name: name, Config: c.Servers[name]})
	}
	return hosts
}

// Summarized reports whether the host takes part in summary runs.
// Hosts are included unless they opt out with summarize: false.
func (h HostConfig) Summarized() bool {
	return h.Summarize == nil || *h.Summarize
}

// DriverName returns the configured driver, defaulting to ssh.
func (h HostConfig) DriverName() string {
	if h.Driver == "" {
		return DriverSSH
	}
	return h.Driver
}

// Address returns host:port for the ssh driver. The server name is used
// when no host is configured.
func (h HostConfig) Address(name string) string {
	host := h.Config.Host
	if host == "" {
		host = name
	}
	port := h.Config.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Timeout returns the connection timeout, defaulting to DefaultTimeout.
func (h HostConfig) Timeout() time.Duration {
	if h.Config.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(h.Config.Timeout)
}

// CommandTimeout bounds a single remote command.
func (h HostConfig) CommandTimeout() time.Duration {
	if h.Config.CommandTimeout <= 0 {
		return DefaultCommandTimeout
	}
	return time.Duration(h.Config.CommandTimeout)
}

// ErrNoServers is returned when the effective configuration has no servers
// key, or a null one. An empty mapping is a valid, if idle, fleet.
var ErrNoServers = errors.New("config: no servers configured")

// Decode strictly decodes a merged document into a Config. Unknown keys in
// the typed part of the schema fail the decode instead of being ignored.
func Decode(doc *yaml.Node) (*Config, error) {
	root, err := rootMapping(doc)
	if err != nil {
		return nil, err
	}

	// KnownFields is only honoured by yaml.Decoder, so round-trip through
	// bytes rather than calling doc.Decode.
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("config: encode merged document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encode merged document: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(&buf)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	servers := lookup(root, "servers")
	if servers == nil || isNull(servers) {
		return nil, ErrNoServers
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]HostConfig{}
	}
	for i := 0; i+1 < len(servers.Content); i += 2 {
		cfg.order = append(cfg.order, resolve(servers.Content[i]).Value)
	}
	if cfg.Meta == nil {
		cfg.Meta = map[string]any{}
	}
	return &cfg, nil
}

// lookup returns the value node for key in a mapping node, or nil.
func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if resolve(m.Content[i]).Value == key {
			return resolve(m.Content[i+1])
		}
	}
	return nil
}
