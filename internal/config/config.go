package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is the config file looked up in the working directory.
	DefaultPath = "sunfish.yaml"

	DefaultDebounce      = 10 * time.Millisecond
	DefaultBatchLimit    = 1_000_000
	DefaultProbeInterval = 100 * time.Millisecond
	DefaultLogLines      = 1000
	DefaultChildPort     = 8081
)

// Config is the watchserve configuration. It is loaded once at startup and
// treated as immutable afterwards.
type Config struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	ChildHost string `yaml:"child_host"`
	ChildPort int    `yaml:"child_port"` // 0 picks a free port at startup

	Watch   []string `yaml:"watch"`
	Ignore  []string `yaml:"ignore,omitempty"`
	Command string   `yaml:"command"`

	Debounce      Duration `yaml:"debounce,omitempty"`
	BatchLimit    int      `yaml:"batch_limit,omitempty"`
	ProbeInterval Duration `yaml:"probe_interval,omitempty"`
	ReadyTimeout  Duration `yaml:"ready_timeout,omitempty"` // 0 waits forever
	KillTimeout   Duration `yaml:"kill_timeout,omitempty"`  // 0 sends SIGKILL immediately

	AdminAddr string `yaml:"admin_addr,omitempty"`
	StateFile string `yaml:"state_file,omitempty"`
	Journal   string `yaml:"journal,omitempty"` // rebuild history file, empty disables
	LogLines  int    `yaml:"log_lines,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "10ms", "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns a Config with every optional field populated.
func Default() *Config {
	cfg := &Config{ChildPort: DefaultChildPort}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path. A missing file yields the
// defaults and no error, so flags and environment alone can configure a run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ChildHost == "" {
		c.ChildHost = "127.0.0.1"
	}
	if len(c.Watch) == 0 {
		c.Watch = []string{"."}
	}
	if c.Debounce.Duration <= 0 {
		c.Debounce.Duration = DefaultDebounce
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = DefaultBatchLimit
	}
	if c.ProbeInterval.Duration <= 0 {
		c.ProbeInterval.Duration = DefaultProbeInterval
	}
	if c.LogLines <= 0 {
		c.LogLines = DefaultLogLines
	}
}

// Validate checks that a config is well-formed.
func (c *Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	if err := validPort("port", c.Port, false); err != nil {
		return err
	}
	if err := validPort("child_port", c.ChildPort, true); err != nil {
		return err
	}
	if net.ParseIP(c.Host) == nil {
		return fmt.Errorf("host %q is not an IP address", c.Host)
	}
	if net.ParseIP(c.ChildHost) == nil {
		return fmt.Errorf("child_host %q is not an IP address", c.ChildHost)
	}
	if c.Host == c.ChildHost && c.Port == c.ChildPort {
		return fmt.Errorf("child_port must differ from port when hosts are equal")
	}
	for _, root := range c.Watch {
		if root == "" {
			return fmt.Errorf("watch entries must not be empty")
		}
	}
	if c.ReadyTimeout.Duration < 0 {
		return fmt.Errorf("ready_timeout must not be negative")
	}
	if c.KillTimeout.Duration < 0 {
		return fmt.Errorf("kill_timeout must not be negative")
	}
	if c.AdminAddr != "" {
		if _, _, err := net.SplitHostPort(c.AdminAddr); err != nil {
			return fmt.Errorf("admin_addr %q: %w", c.AdminAddr, err)
		}
	}
	return nil
}

func validPort(key string, port int, zeroOK bool) error {
	if port == 0 && zeroOK {
		return nil
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", key, port)
	}
	return nil
}

// Resolve returns a copy whose watch roots and ignore prefixes are absolute,
// joined onto cwd when relative.
func (c *Config) Resolve(cwd string) *Config {
	out := *c
	out.Watch = absAll(cwd, c.Watch)
	out.Ignore = absAll(cwd, c.Ignore)
	if out.Journal != "" && !filepath.IsAbs(out.Journal) {
		out.Journal = filepath.Join(cwd, out.Journal)
	}
	return &out
}

func absAll(cwd string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(cwd, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}

// Addr is the front door listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ChildAddr is the address the child is expected to listen on.
func (c *Config) ChildAddr() string {
	return net.JoinHostPort(c.ChildHost, strconv.Itoa(c.ChildPort))
}
