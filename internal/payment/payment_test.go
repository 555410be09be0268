package payment

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// ── Uint256 JSON ──────────────────────────────────────────────────────────────

func TestUint256RoundTrip(t *testing.T) {
	cases := []string{
		"0",
		"1",
		"1000000",
		"115792089237316195423570985008687907853269984665640564039457584007913129639935", // 2^256-1
	}
	for _, s := range cases {
		v, _ := new(big.Int).SetString(s, 10)
		u := NewUint256(v)

		raw, err := json.Marshal(u)
		if err != nil {
			t.Fatalf("marshal %s: %v", s, err)
		}
		if string(raw) != `"`+s+`"` {
			t.Errorf("marshal %s = %s, want quoted decimal", s, raw)
		}

		var back Uint256
		if err := json.Unmarshal(raw, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if back.Cmp(v) != 0 {
			t.Errorf("round trip %s = %s", s, back.Text(10))
		}
	}
}

func TestUint256RejectsBadInput(t *testing.T) {
	cases := []string{
		`123`,    // bare number, must be quoted
		`"-1"`,   // negative
		`"0x10"`, // hex not allowed
		`""`,     // empty
		`"1.5"`,  // not an integer
		`"abc"`,  // not a number
		`null`,   // null into a value
		`"115792089237316195423570985008687907853269984665640564039457584007913129639936"`, // 2^256, one past max
		`"1157920892373161954235709850086879078532699846656405640394575840079131296399350"`, // far out of range
	}
	for _, raw := range cases {
		var u Uint256
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			t.Errorf("unmarshal %s: want error, got %s", raw, u.Text(10))
		}
	}
}

func TestUint256MarshalNil(t *testing.T) {
	var u *Uint256
	raw, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("marshal nil = %s, want null", raw)
	}
}

// ── ParseAmount ───────────────────────────────────────────────────────────────

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		dec  int32
		want string
	}{
		{"1", 6, "1000000"},
		{"0.5", 6, "500000"},
		{"100.50", 6, "100500000"},
		{"0.000001", 6, "1"},
		{"0", 6, "0"},
		{"2.25", 2, "225"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in, tc.dec)
		if err != nil {
			t.Fatalf("ParseAmount(%q, %d): %v", tc.in, tc.dec, err)
		}
		if got.String() != tc.want {
			t.Errorf("ParseAmount(%q, %d) = %s, want %s", tc.in, tc.dec, got, tc.want)
		}
	}
}

func TestParseAmountRejects(t *testing.T) {
	cases := []struct {
		in  string
		dec int32
	}{
		{"0.0000001", 6}, // more precision than the token supports
		{"-1", 6},
		{"abc", 6},
		{"", 6},
	}
	for _, tc := range cases {
		if _, err := ParseAmount(tc.in, tc.dec); err == nil {
			t.Errorf("ParseAmount(%q, %d): want error", tc.in, tc.dec)
		}
	}
}

// ── Network registry ──────────────────────────────────────────────────────────

func TestKnownNetworks(t *testing.T) {
	cases := []struct {
		network Network
		chainID int64
	}{
		{NetworkBase, 8453},
		{NetworkBaseSepolia, 84532},
		{NetworkAvalanche, 43114},
		{NetworkAvalancheFuji, 43113},
		{NetworkPolygonAmoy, 80002},
	}
	for _, tc := range cases {
		info, ok := KnownNetwork(tc.network)
		if !ok {
			t.Fatalf("KnownNetwork(%s): not found", tc.network)
		}
		if info.ChainID != tc.chainID {
			t.Errorf("%s chain id = %d, want %d", tc.network, info.ChainID, tc.chainID)
		}
		if info.USDC == (common.Address{}) {
			t.Errorf("%s has zero USDC address", tc.network)
		}
		if info.DomainName == "" || info.DomainVersion == "" {
			t.Errorf("%s missing EIP-712 domain params", tc.network)
		}
		if tc.network.ChainID().Int64() != tc.chainID {
			t.Errorf("%s ChainID() = %s", tc.network, tc.network.ChainID())
		}
	}

	if _, ok := KnownNetwork("solana"); ok {
		t.Error("KnownNetwork(solana): want not found")
	}
	if Network("solana").ChainID() != nil {
		t.Error("unknown network ChainID: want nil")
	}
}

// ── Requirements domain resolution ────────────────────────────────────────────

func TestRequirementsDomain(t *testing.T) {
	reqs := PaymentRequirements{Network: NetworkBase}
	name, version := reqs.Domain()
	if name != "USD Coin" || version != "2" {
		t.Errorf("base default domain = %q/%q", name, version)
	}

	extra := json.RawMessage(`{"name":"Custom Token","version":"1"}`)
	reqs.Extra = &extra
	name, version = reqs.Domain()
	if name != "Custom Token" || version != "1" {
		t.Errorf("extra override = %q/%q", name, version)
	}

	// Partial override keeps the registry default for the missing half.
	partial := json.RawMessage(`{"name":"Custom Token"}`)
	reqs.Extra = &partial
	name, version = reqs.Domain()
	if name != "Custom Token" || version != "2" {
		t.Errorf("partial override = %q/%q", name, version)
	}
}

// ── Request validation ────────────────────────────────────────────────────────

func validRequest() *VerifyRequest {
	return &VerifyRequest{
		X402Version: 1,
		PaymentPayload: PaymentPayload{
			X402Version: 1,
			Scheme:      SchemeExact,
			Network:     NetworkBaseSepolia,
			Payload: ExactEvmPayload{
				Signature: make([]byte, 65),
				Authorization: Authorization{
					From:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
					To:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
					Value:       Uint256FromUint64(1000000),
					ValidAfter:  Uint256FromUint64(0),
					ValidBefore: Uint256FromUint64(1900000000),
					Nonce:       common.HexToHash("0x01"),
				},
			},
		},
		PaymentRequirements: PaymentRequirements{
			Scheme:            SchemeExact,
			Network:           NetworkBaseSepolia,
			MaxAmountRequired: Uint256FromUint64(1000000),
			PayTo:             common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Asset:             common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
		},
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*VerifyRequest)
	}{
		{"wrong version", func(r *VerifyRequest) { r.X402Version = 2 }},
		{"short signature", func(r *VerifyRequest) { r.PaymentPayload.Payload.Signature = make([]byte, 64) }},
		{"long signature", func(r *VerifyRequest) { r.PaymentPayload.Payload.Signature = make([]byte, 66) }},
		{"nil value", func(r *VerifyRequest) { r.PaymentPayload.Payload.Authorization.Value = nil }},
		{"nil validAfter", func(r *VerifyRequest) { r.PaymentPayload.Payload.Authorization.ValidAfter = nil }},
		{"nil validBefore", func(r *VerifyRequest) { r.PaymentPayload.Payload.Authorization.ValidBefore = nil }},
		{"missing scheme", func(r *VerifyRequest) { r.PaymentRequirements.Scheme = "" }},
		{"missing network", func(r *VerifyRequest) { r.PaymentRequirements.Network = "" }},
		{"missing maxAmount", func(r *VerifyRequest) { r.PaymentRequirements.MaxAmountRequired = nil }},
		{"value overflows uint256", func(r *VerifyRequest) {
			r.PaymentPayload.Payload.Authorization.Value = oversized()
		}},
		{"validBefore overflows uint256", func(r *VerifyRequest) {
			r.PaymentPayload.Payload.Authorization.ValidBefore = oversized()
		}},
		{"zero payTo", func(r *VerifyRequest) { r.PaymentRequirements.PayTo = common.Address{} }},
		{"zero asset", func(r *VerifyRequest) { r.PaymentRequirements.Asset = common.Address{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)
			if err := req.Validate(); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestPaymentPayloadJSON(t *testing.T) {
	raw := `{
		"x402Version": 1,
		"scheme": "exact",
		"network": "base-sepolia",
		"payload": {
			"signature": "0x` + string(make65hex()) + `",
			"authorization": {
				"from": "0x1111111111111111111111111111111111111111",
				"to": "0x2222222222222222222222222222222222222222",
				"value": "1000000",
				"validAfter": "0",
				"validBefore": "1900000000",
				"nonce": "0x0000000000000000000000000000000000000000000000000000000000000001"
			}
		}
	}`
	var p PaymentPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Scheme != SchemeExact || p.Network != NetworkBaseSepolia {
		t.Errorf("scheme/network = %s/%s", p.Scheme, p.Network)
	}
	if len(p.Payload.Signature) != 65 {
		t.Errorf("signature len = %d", len(p.Payload.Signature))
	}
	if p.Payload.Authorization.Value.Uint64() != 1000000 {
		t.Errorf("value = %s", p.Payload.Authorization.Value.Text(10))
	}
}

// oversized builds a numeric field that does not fit in 256 bits.
func oversized() *Uint256 {
	u := new(Uint256)
	u.Lsh(big.NewInt(1), 300)
	return u
}

func make65hex() []byte {
	out := make([]byte, 130)
	for i := range out {
		out[i] = 'a'
	}
	return out
}
