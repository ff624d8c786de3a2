// Package keypair parses Solana signing keys from the formats operators
// actually paste into config: a base58 secret key, a solana-keygen style
// JSON byte array, or a BIP-39 seed phrase.
package keypair

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
)

// solanaDerivationPath is the standard wallet path m/44'/501'/0'/0'.
// All segments are hardened; SLIP-0010 ed25519 derivation only supports
// hardened children anyway.
var solanaDerivationPath = []uint32{44, 501, 0, 0}

// Parse accepts a secret in base58, JSON array, or mnemonic form, tried in
// that order.
func Parse(secret string) (solana.PrivateKey, error) {
	if key, err := parseBase58(secret); err == nil {
		return key, nil
	}
	if key, err := parseJSON(secret); err == nil {
		return key, nil
	}
	key, err := parseMnemonic(secret)
	if err != nil {
		return nil, fmt.Errorf("secret is not a base58 key, JSON key, or mnemonic: %w", err)
	}
	return key, nil
}

func parseBase58(secret string) (solana.PrivateKey, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 secret: %w", err)
	}
	return fromBytes(raw)
}

func parseJSON(secret string) (solana.PrivateKey, error) {
	// solana-keygen writes a numeric array; unmarshalling into []byte would
	// demand base64 instead.
	var nums []uint16
	if err := json.Unmarshal([]byte(secret), &nums); err != nil {
		return nil, fmt.Errorf("failed to decode JSON secret: %w", err)
	}
	raw := make([]byte, len(nums))
	for i, n := range nums {
		if n > 0xff {
			return nil, fmt.Errorf("JSON secret byte %d out of range: %d", i, n)
		}
		raw[i] = byte(n)
	}
	return fromBytes(raw)
}

func parseMnemonic(phrase string) (solana.PrivateKey, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return nil, fmt.Errorf("invalid mnemonic phrase")
	}
	seed := bip39.NewSeed(phrase, "")
	derived, err := deriveEd25519(seed, solanaDerivationPath)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keypair: %w", err)
	}
	return solana.PrivateKey(ed25519.NewKeyFromSeed(derived)), nil
}

func fromBytes(raw []byte) (solana.PrivateKey, error) {
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return solana.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return solana.PrivateKey(ed25519.NewKeyFromSeed(raw)), nil
	default:
		return nil, fmt.Errorf("secret key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// deriveEd25519 walks a SLIP-0010 ed25519 derivation path, treating every
// segment as hardened.
func deriveEd25519(seed []byte, path []uint32) ([]byte, error) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	if _, err := mac.Write(seed); err != nil {
		return nil, err
	}
	sum := mac.Sum(nil)
	key, chainCode := sum[:32], sum[32:]

	for _, segment := range path {
		var index [4]byte
		binary.BigEndian.PutUint32(index[:], segment|0x80000000)

		mac = hmac.New(sha512.New, chainCode)
		if _, err := mac.Write([]byte{0x00}); err != nil {
			return nil, err
		}
		if _, err := mac.Write(key); err != nil {
			return nil, err
		}
		if _, err := mac.Write(index[:]); err != nil {
			return nil, err
		}
		sum = mac.Sum(nil)
		key, chainCode = sum[:32], sum[32:]
	}
	return key, nil
}
