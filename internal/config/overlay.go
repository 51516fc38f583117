package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: SUNFISH_CHILD_PORT etc.
const EnvPrefix = "SUNFISH"

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"host":           "host",
	"port":           "port",
	"child-host":     "child_host",
	"child-port":     "child_port",
	"watch":          "watch",
	"ignore":         "ignore",
	"command":        "command",
	"debounce":       "debounce",
	"batch-limit":    "batch_limit",
	"probe-interval": "probe_interval",
	"ready-timeout":  "ready_timeout",
	"kill-timeout":   "kill_timeout",
	"admin-addr":     "admin_addr",
	"state-file":     "state_file",
	"journal":        "journal",
	"log-lines":      "log_lines",
}

// NewViper returns a viper instance reading SUNFISH_* environment variables
// and any of flags that match a config key.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags == nil {
		return v, nil
	}
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Overlay replaces every field whose key is set in v, by a changed flag or
// an environment variable, leaving file values in place otherwise.
func (c *Config) Overlay(v *viper.Viper) {
	if v.IsSet("host") {
		c.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		c.Port = v.GetInt("port")
	}
	if v.IsSet("child_host") {
		c.ChildHost = v.GetString("child_host")
	}
	if v.IsSet("child_port") {
		c.ChildPort = v.GetInt("child_port")
	}
	if v.IsSet("watch") {
		c.Watch = v.GetStringSlice("watch")
	}
	if v.IsSet("ignore") {
		c.Ignore = v.GetStringSlice("ignore")
	}
	if v.IsSet("command") {
		c.Command = v.GetString("command")
	}
	if v.IsSet("debounce") {
		c.Debounce.Duration = v.GetDuration("debounce")
	}
	if v.IsSet("batch_limit") {
		c.BatchLimit = v.GetInt("batch_limit")
	}
	if v.IsSet("probe_interval") {
		c.ProbeInterval.Duration = v.GetDuration("probe_interval")
	}
	if v.IsSet("ready_timeout") {
		c.ReadyTimeout.Duration = v.GetDuration("ready_timeout")
	}
	if v.IsSet("kill_timeout") {
		c.KillTimeout.Duration = v.GetDuration("kill_timeout")
	}
	if v.IsSet("admin_addr") {
		c.AdminAddr = v.GetString("admin_addr")
	}
	if v.IsSet("state_file") {
		c.StateFile = v.GetString("state_file")
	}
	if v.IsSet("journal") {
		c.Journal = v.GetString("journal")
	}
	if v.IsSet("log_lines") {
		c.LogLines = v.GetInt("log_lines")
	}
	c.applyDefaults()
}
