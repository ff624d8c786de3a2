// Package dstate holds the read-only snapshot of the on-chain distributor
// program state and the instruction encoding the backend submits against it.
package dstate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrInvalidDiscriminator = errors.New("account data is not a distributor state")
	ErrInvalidShares        = errors.New("number of shares must be at least 2")
	ErrThresholdOverflow    = errors.New("share size times number of shares overflows uint64")
)

// State mirrors the program's DistributorState account. The backend fetches
// it once at startup and treats it as immutable for the process lifetime;
// picking up on-chain parameter changes requires a restart.
type State struct {
	Vault                solana.PublicKey
	Mint                 solana.PublicKey
	MarkerMint           solana.PublicKey
	DistributorAuthority solana.PublicKey

	ShareSize      uint64
	NumberOfShares uint64

	StateBump uint8
	VaultBump uint8
}

// accountDiscriminator is the 8-byte Anchor account tag preceding the Borsh
// payload.
func accountDiscriminator() []byte {
	sum := sha256.Sum256([]byte("account:DistributorState"))
	return sum[:8]
}

// DistributeInstructionData returns the Anchor instruction data for
// distribute, which takes no arguments.
func DistributeInstructionData() []byte {
	sum := sha256.Sum256([]byte("global:distribute"))
	return sum[:8]
}

// Decode parses a raw DistributorState account.
func Decode(data []byte) (State, error) {
	if len(data) < 8 {
		return State{}, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], accountDiscriminator()) {
		return State{}, ErrInvalidDiscriminator
	}

	var state State
	if err := bin.NewBorshDecoder(data[8:]).Decode(&state); err != nil {
		return State{}, fmt.Errorf("failed to decode distributor state: %w", err)
	}
	return state, nil
}

// Fetch reads and decodes the DistributorState account at addr.
func Fetch(ctx context.Context, client AccountFetcher, addr solana.PublicKey) (State, error) {
	data, err := client.GetAccountData(ctx, addr)
	if err != nil {
		return State{}, fmt.Errorf("failed to fetch distributor state account: %w", err)
	}
	return Decode(data)
}

// AccountFetcher is the slice of the ledger client Fetch needs.
type AccountFetcher interface {
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// Validate re-checks the invariants the program enforces at initialization.
// The program guards these upstream, but the backend multiplies the two
// values on every threshold check and must not trust stale or corrupt
// account data.
func (s State) Validate() error {
	if s.NumberOfShares < 2 {
		return ErrInvalidShares
	}
	if s.ShareSize > 0 && s.ShareSize > math.MaxUint64/s.NumberOfShares {
		return ErrThresholdOverflow
	}
	return nil
}

// Threshold is the minimum vault balance that triggers a distribution round.
// Call Validate first; the multiplication is unchecked here.
func (s State) Threshold() uint64 {
	return s.ShareSize * s.NumberOfShares
}
