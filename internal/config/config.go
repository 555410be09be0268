package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

// usdcDecimals is the decimal count of every supported asset; settlement caps
// in config are written in display units and converted exactly.
const usdcDecimals = 6

type Config struct {
	Server Server
	Signer Signer
	Redis  Redis
	RPC    RPC
	Verify Verify
	// Networks comes from the config file; the env-only single-network
	// deployment path uses NETWORK + RPC_URL instead.
	Networks []Network `mapstructure:"networks"`
}

type Server struct {
	Port int `mapstructure:"port"`
}

type Signer struct {
	// PrivateKey is the hex key of the facilitator's operating account,
	// which pays gas for every settlement.
	PrivateKey string `mapstructure:"private_key"`
}

type Redis struct {
	// Addr is optional; empty disables the settlement journal.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type RPC struct {
	CallTimeoutSec    int64 `mapstructure:"call_timeout_sec"`
	ConfirmTimeoutSec int64 `mapstructure:"confirm_timeout_sec"`
	HealthIntervalSec int64 `mapstructure:"health_interval_sec"`
}

type Verify struct {
	ClockSkewSec int64 `mapstructure:"clock_skew_sec"`
}

type Network struct {
	Name   string `mapstructure:"name"`
	RPCURL string `mapstructure:"rpc_url"`
	// MaxValue caps the per-settlement amount in display units
	// (e.g. "100.50"); empty means uncapped.
	MaxValue string `mapstructure:"max_value"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("rpc.call_timeout_sec", 10)
	v.SetDefault("rpc.confirm_timeout_sec", 60)
	v.SetDefault("rpc.health_interval_sec", 30)
	v.SetDefault("verify.clock_skew_sec", 0)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":             "PORT",
		"signer.private_key":      "SIGNER_KEY",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"rpc.call_timeout_sec":    "RPC_CALL_TIMEOUT_SEC",
		"rpc.confirm_timeout_sec": "RPC_CONFIRM_TIMEOUT_SEC",
		"rpc.health_interval_sec": "HEALTH_INTERVAL_SEC",
		"verify.clock_skew_sec":   "CLOCK_SKEW_SEC",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Env-only fallback for single-network deployments.
	if len(cfg.Networks) == 0 {
		name := v.GetString("NETWORK")
		url := v.GetString("RPC_URL")
		if name != "" && url != "" {
			cfg.Networks = []Network{{
				Name:     name,
				RPCURL:   url,
				MaxValue: v.GetString("MAX_VALUE"),
			}}
		}
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Signer.PrivateKey == "" {
		return fmt.Errorf("required config missing: SIGNER_KEY")
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("no networks configured (set networks in config.yaml or NETWORK + RPC_URL)")
	}
	for _, n := range c.Networks {
		if _, ok := payment.KnownNetwork(payment.Network(n.Name)); !ok {
			return fmt.Errorf("unknown network %q", n.Name)
		}
		if n.RPCURL == "" {
			return fmt.Errorf("network %q missing rpc_url", n.Name)
		}
		if n.MaxValue != "" {
			if _, err := payment.ParseAmount(n.MaxValue, usdcDecimals); err != nil {
				return fmt.Errorf("network %q: %w", n.Name, err)
			}
		}
	}
	return nil
}

// ValueCaps converts the per-network caps into atomic units.
func (c *Config) ValueCaps() (map[payment.Network]*big.Int, error) {
	caps := make(map[payment.Network]*big.Int)
	for _, n := range c.Networks {
		if n.MaxValue == "" {
			continue
		}
		atomic, err := payment.ParseAmount(n.MaxValue, usdcDecimals)
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", n.Name, err)
		}
		caps[payment.Network(n.Name)] = atomic
	}
	return caps, nil
}

func (c *RPC) CallTimeout() time.Duration    { return time.Duration(c.CallTimeoutSec) * time.Second }
func (c *RPC) ConfirmTimeout() time.Duration { return time.Duration(c.ConfirmTimeoutSec) * time.Second }
func (c *RPC) HealthInterval() time.Duration { return time.Duration(c.HealthIntervalSec) * time.Second }
func (c *Verify) ClockSkew() time.Duration   { return time.Duration(c.ClockSkewSec) * time.Second }
