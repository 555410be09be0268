package config

import (
	"testing"

	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SIGNER_KEY", testKey)
	t.Setenv("NETWORK", "base-sepolia")
	t.Setenv("RPC_URL", "https://sepolia.base.org")
}

func TestLoadSingleNetworkFromEnv(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Signer.PrivateKey != testKey {
		t.Errorf("signer key = %q", cfg.Signer.PrivateKey)
	}
	if len(cfg.Networks) != 1 {
		t.Fatalf("networks = %v", cfg.Networks)
	}
	if cfg.Networks[0].Name != "base-sepolia" || cfg.Networks[0].RPCURL != "https://sepolia.base.org" {
		t.Errorf("network = %+v", cfg.Networks[0])
	}
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.RPC.CallTimeout().Seconds() != 10 {
		t.Errorf("call timeout = %v", cfg.RPC.CallTimeout())
	}
	if cfg.RPC.ConfirmTimeout().Seconds() != 60 {
		t.Errorf("confirm timeout = %v", cfg.RPC.ConfirmTimeout())
	}
	if cfg.RPC.HealthInterval().Seconds() != 30 {
		t.Errorf("health interval = %v", cfg.RPC.HealthInterval())
	}
	if cfg.Verify.ClockSkew() != 0 {
		t.Errorf("clock skew = %v", cfg.Verify.ClockSkew())
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("CLOCK_SKEW_SEC", "6")
	t.Setenv("RPC_CALL_TIMEOUT_SEC", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Verify.ClockSkew().Seconds() != 6 {
		t.Errorf("clock skew = %v", cfg.Verify.ClockSkew())
	}
	if cfg.RPC.CallTimeout().Seconds() != 5 {
		t.Errorf("call timeout = %v", cfg.RPC.CallTimeout())
	}
}

func TestLoadRejectsMissingSigner(t *testing.T) {
	t.Setenv("SIGNER_KEY", "")
	t.Setenv("NETWORK", "base-sepolia")
	t.Setenv("RPC_URL", "https://sepolia.base.org")
	if _, err := Load(); err == nil {
		t.Fatal("want error for missing signer key")
	}
}

func TestLoadRejectsNoNetworks(t *testing.T) {
	t.Setenv("SIGNER_KEY", testKey)
	t.Setenv("NETWORK", "")
	t.Setenv("RPC_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("want error for no networks")
	}
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	t.Setenv("SIGNER_KEY", testKey)
	t.Setenv("NETWORK", "solana")
	t.Setenv("RPC_URL", "https://example.org")
	if _, err := Load(); err == nil {
		t.Fatal("want error for unknown network")
	}
}

func TestLoadRejectsBadMaxValue(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MAX_VALUE", "0.0000001") // finer than USDC's 6 decimals
	if _, err := Load(); err == nil {
		t.Fatal("want error for unrepresentable cap")
	}
}

func TestValueCaps(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MAX_VALUE", "100.50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	caps, err := cfg.ValueCaps()
	if err != nil {
		t.Fatalf("ValueCaps: %v", err)
	}
	limit, ok := caps[payment.NetworkBaseSepolia]
	if !ok {
		t.Fatal("no cap for base-sepolia")
	}
	if limit.String() != "100500000" {
		t.Errorf("cap = %s, want 100500000 atomic units", limit)
	}
}

func TestValueCapsEmptyWhenUnset(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	caps, err := cfg.ValueCaps()
	if err != nil {
		t.Fatalf("ValueCaps: %v", err)
	}
	if len(caps) != 0 {
		t.Errorf("caps = %v, want none", caps)
	}
}
