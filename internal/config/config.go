// Package config resolves the CDP connection settings frago needs to reach
// a running Chrome instance: host/port, timeouts, and optional upstream
// proxy. Values layer from defaults, a viper-backed config file, and
// FRAGO_-prefixed process environment, each overriding the one before it, so
// the process environment wins here (unlike internal/env, where it is the
// lowest tier).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// CDPConfig holds everything needed to dial and drive a Chrome DevTools
// Protocol endpoint.
type CDPConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	ConnectTimeoutSeconds float64 `json:"connect_timeout" yaml:"connect_timeout"`
	CommandTimeoutSeconds float64 `json:"command_timeout" yaml:"command_timeout"`

	MaxRetries int     `json:"max_retries" yaml:"max_retries"`
	RetryDelay float64 `json:"retry_delay" yaml:"retry_delay"`

	ProxyHost     string `json:"proxy_host" yaml:"proxy_host"`
	ProxyPort     int    `json:"proxy_port" yaml:"proxy_port"`
	ProxyUsername string `json:"-" yaml:"-"`
	ProxyPassword string `json:"-" yaml:"-"`
	NoProxy       bool   `json:"no_proxy" yaml:"no_proxy"`

	// TargetID pins the session to one browser tab; empty means auto-select
	// the first page target.
	TargetID string `json:"target_id" yaml:"target_id"`
}

// Default returns a CDPConfig with frago's standard local-connection
// defaults, then overlays any HTTP(S)_PROXY/NO_PROXY found in the process
// environment.
func Default() CDPConfig {
	cfg := CDPConfig{
		Host:                  "127.0.0.1",
		Port:                  9222,
		ConnectTimeoutSeconds: 5.0,
		CommandTimeoutSeconds: 30.0,
		MaxRetries:            3,
		RetryDelay:            1.0,
	}
	cfg.loadProxyFromEnv()
	return cfg
}

// Load merges Default() with values from a config file (if present) located
// by viper under the given search paths, and a FRAGO_ env-var prefix that
// takes precedence over the file.
func Load(configName string, searchPaths ...string) (CDPConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("FRAGO")
	v.AutomaticEnv()

	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("connect_timeout", cfg.ConnectTimeoutSeconds)
	v.SetDefault("command_timeout", cfg.CommandTimeoutSeconds)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("retry_delay", cfg.RetryDelay)
	v.SetDefault("no_proxy", cfg.NoProxy)
	v.SetDefault("target_id", cfg.TargetID)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return cfg, fmt.Errorf("read cdp config: %w", err)
		}
	}

	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.ConnectTimeoutSeconds = v.GetFloat64("connect_timeout")
	cfg.CommandTimeoutSeconds = v.GetFloat64("command_timeout")
	cfg.MaxRetries = v.GetInt("max_retries")
	cfg.RetryDelay = v.GetFloat64("retry_delay")
	cfg.NoProxy = v.GetBool("no_proxy")
	cfg.TargetID = v.GetString("target_id")

	if ph := v.GetString("proxy_host"); ph != "" {
		cfg.ProxyHost = ph
	}
	if pp := v.GetInt("proxy_port"); pp != 0 {
		cfg.ProxyPort = pp
	}
	return cfg, nil
}

// loadProxyFromEnv mirrors Chrome/curl-style proxy resolution: HTTPS_PROXY
// wins over HTTP_PROXY, and NO_PROXY can name the CDP host explicitly or
// bypass everything with "*". Explicit config always wins over env.
func (c *CDPConfig) loadProxyFromEnv() {
	if c.NoProxy || (c.ProxyHost != "" && c.ProxyPort != 0) {
		return
	}

	var proxyURL string
	for _, name := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if v := os.Getenv(name); v != "" {
			proxyURL = v
			break
		}
	}

	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			if parsed.Hostname() != "" {
				c.ProxyHost = parsed.Hostname()
			}
			if parsed.Port() != "" {
				fmt.Sscanf(parsed.Port(), "%d", &c.ProxyPort)
			}
			if parsed.User != nil {
				c.ProxyUsername = parsed.User.Username()
				c.ProxyPassword, _ = parsed.User.Password()
			}
		}
	}

	noProxy := os.Getenv("NO_PROXY")
	if noProxy == "" {
		noProxy = os.Getenv("no_proxy")
	}
	if noProxy != "" {
		for _, host := range strings.Split(noProxy, ",") {
			host = strings.TrimSpace(host)
			if host == "*" || host == c.Host {
				c.NoProxy = true
				break
			}
		}
	}
}

// WebSocketURL returns the static browser-level devtools websocket endpoint.
// Sessions prefer a page-scoped URL discovered via /json/list, falling back
// to this when discovery fails.
func (c CDPConfig) WebSocketURL() string {
	return fmt.Sprintf("ws://%s:%d/devtools/browser", c.Host, c.Port)
}

// HTTPURL returns the base HTTP endpoint Chrome's debugger exposes for
// /json/list, /json/version, and friends.
func (c CDPConfig) HTTPURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// ValidateProxy reports whether the proxy fields form a coherent
// configuration (host/port paired, port in range, auth paired).
func (c CDPConfig) ValidateProxy() error {
	if c.NoProxy {
		return nil
	}
	if c.ProxyHost == "" && c.ProxyPort == 0 {
		return nil
	}
	if c.ProxyHost != "" && c.ProxyPort == 0 {
		return fmt.Errorf("proxy host set without a proxy port")
	}
	if c.ProxyPort != 0 && c.ProxyHost == "" {
		return fmt.Errorf("proxy port set without a proxy host")
	}
	if c.ProxyPort < 1 || c.ProxyPort > 65535 {
		return fmt.Errorf("proxy port %d out of range 1-65535", c.ProxyPort)
	}
	if (c.ProxyUsername == "") != (c.ProxyPassword == "") {
		return fmt.Errorf("proxy username and password must both be set or both empty")
	}
	return nil
}

// SafeString renders the config without leaking proxy credentials, suitable
// for logging.
func (c CDPConfig) SafeString() string {
	return fmt.Sprintf(
		"CDPConfig(host=%s port=%d connect_timeout=%.1fs command_timeout=%.1fs proxy=%s)",
		c.Host, c.Port, c.ConnectTimeoutSeconds, c.CommandTimeoutSeconds, c.proxyDescription(),
	)
}

func (c CDPConfig) proxyDescription() string {
	if c.NoProxy || c.ProxyHost == "" {
		return "none"
	}
	auth := "no-auth"
	if c.ProxyUsername != "" {
		auth = "auth"
	}
	return fmt.Sprintf("%s:%d(%s)", c.ProxyHost, c.ProxyPort, auth)
}
