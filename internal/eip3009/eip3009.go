// Package eip3009 builds and verifies EIP-712 typed-data digests for
// TransferWithAuthorization (EIP-3009) and recovers the signer of a
// client-supplied authorization.
package eip3009

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

var transferTypeHash = crypto.Keccak256Hash([]byte(
	"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)",
))

// Domain is the EIP-712 domain of the token contract the authorization is
// bound to. Name and version come from the token (e.g. "USD Coin"/"2" for
// USDC); VerifyingContract is the token address itself.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// domainSeparator computes the EIP-712 domain separator.
func domainSeparator(d Domain) [32]byte {
	domainTypeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	nameHash := crypto.Keccak256Hash([]byte(d.Name))
	versionHash := crypto.Keccak256Hash([]byte(d.Version))

	// ABI-encode: (bytes32, bytes32, bytes32, uint256, address),
	// each element left-padded to its own 32-byte slot.
	encoded := make([]byte, 5*32)
	copy(encoded[0:32], domainTypeHash[:])
	copy(encoded[32:64], nameHash[:])
	copy(encoded[64:96], versionHash[:])
	d.ChainID.FillBytes(encoded[96:128])
	copy(encoded[140:160], d.VerifyingContract.Bytes()) // addr is right-aligned in its slot

	return crypto.Keccak256Hash(encoded)
}

// Digest computes the final signing digest
// keccak256(0x1901 || domainSeparator || structHash) for an authorization.
func Digest(auth *payment.Authorization, d Domain) ([32]byte, error) {
	if auth.Value == nil || auth.ValidAfter == nil || auth.ValidBefore == nil {
		return [32]byte{}, errors.New("authorization has nil numeric fields")
	}
	if !auth.Value.Fits() || !auth.ValidAfter.Fits() || !auth.ValidBefore.Fits() {
		return [32]byte{}, errors.New("authorization numeric field exceeds uint256")
	}
	if d.ChainID == nil {
		return [32]byte{}, errors.New("domain chain id is required")
	}

	// structHash = keccak256(typeHash || abi.encode(fields))
	encoded := make([]byte, 7*32)
	copy(encoded[0:32], transferTypeHash[:])
	copy(encoded[44:64], auth.From.Bytes()) // padded address
	copy(encoded[76:96], auth.To.Bytes())
	auth.Value.FillBytes(encoded[96:128])
	auth.ValidAfter.FillBytes(encoded[128:160])
	auth.ValidBefore.FillBytes(encoded[160:192])
	copy(encoded[192:224], auth.Nonce[:])

	structHash := crypto.Keccak256Hash(encoded)
	sep := domainSeparator(d)

	msg := make([]byte, 2+32+32)
	msg[0] = 0x19
	msg[1] = 0x01
	copy(msg[2:34], sep[:])
	copy(msg[34:66], structHash[:])
	return crypto.Keccak256Hash(msg), nil
}

// RecoverSigner extracts the address that signed the authorization under the
// given domain. sig must be 65 bytes (R || S || V), with V in {0,1} or {27,28}.
// The recovered address is NOT compared to auth.From here; that policy
// decision belongs to the caller.
func RecoverSigner(auth *payment.Authorization, sig []byte, d Domain) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("invalid signature length")
	}
	digest, err := Digest(auth, d)
	if err != nil {
		return common.Address{}, err
	}

	// Normalize V: Ethereum uses 27/28, ecrecover expects 0/1
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pub, err := crypto.SigToPub(digest[:], sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces a 65-byte signature (V in 27/28 form, as token contracts
// expect) over the authorization. Used by tests and the example client; the
// facilitator itself never signs authorizations.
func Sign(auth *payment.Authorization, privKey *ecdsa.PrivateKey, d Domain) ([]byte, error) {
	digest, err := Digest(auth, d)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest[:], privKey)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// NewNonce returns a cryptographically random 32-byte nonce.
func NewNonce() (common.Hash, error) {
	var nonce common.Hash
	if _, err := rand.Read(nonce[:]); err != nil {
		return common.Hash{}, err
	}
	return nonce, nil
}
