package dstate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"math"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func encodeStateAccount(t *testing.T, state State) []byte {
	t.Helper()

	sum := sha256.Sum256([]byte("account:DistributorState"))
	var buf bytes.Buffer
	buf.Write(sum[:8])
	require.NoError(t, bin.NewBorshEncoder(&buf).Encode(state))
	return buf.Bytes()
}

func sampleState() State {
	return State{
		Vault:                solana.NewWallet().PublicKey(),
		Mint:                 solana.NewWallet().PublicKey(),
		MarkerMint:           solana.NewWallet().PublicKey(),
		DistributorAuthority: solana.NewWallet().PublicKey(),
		ShareSize:            500_000_000,
		NumberOfShares:       10,
		StateBump:            254,
		VaultBump:            255,
	}
}

func TestDistributor_State_Decode(t *testing.T) {
	t.Parallel()

	t.Run("round-trips a well-formed account", func(t *testing.T) {
		t.Parallel()

		want := sampleState()
		got, err := Decode(encodeStateAccount(t, want))
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("rejects truncated data", func(t *testing.T) {
		t.Parallel()

		_, err := Decode([]byte{1, 2, 3})
		require.Error(t, err)

		data := encodeStateAccount(t, sampleState())
		_, err = Decode(data[:len(data)-4])
		require.Error(t, err)
	})

	t.Run("rejects a foreign discriminator", func(t *testing.T) {
		t.Parallel()

		data := encodeStateAccount(t, sampleState())
		data[0] ^= 0xff
		_, err := Decode(data)
		require.ErrorIs(t, err, ErrInvalidDiscriminator)
	})
}

func TestDistributor_State_Fetch(t *testing.T) {
	t.Parallel()

	want := sampleState()
	addr := solana.NewWallet().PublicKey()

	t.Run("fetches and decodes", func(t *testing.T) {
		t.Parallel()

		fetcher := accountFetcherFunc(func(ctx context.Context, account solana.PublicKey) ([]byte, error) {
			require.Equal(t, addr, account)
			return encodeStateAccount(t, want), nil
		})

		got, err := Fetch(context.Background(), fetcher, addr)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("propagates fetch errors", func(t *testing.T) {
		t.Parallel()

		fetcher := accountFetcherFunc(func(ctx context.Context, account solana.PublicKey) ([]byte, error) {
			return nil, errors.New("account not found")
		})

		_, err := Fetch(context.Background(), fetcher, addr)
		require.Error(t, err)
	})
}

type accountFetcherFunc func(ctx context.Context, account solana.PublicKey) ([]byte, error)

func (f accountFetcherFunc) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return f(ctx, account)
}

func TestDistributor_State_Validate(t *testing.T) {
	t.Parallel()

	state := sampleState()
	require.NoError(t, state.Validate())

	state.NumberOfShares = 0
	require.ErrorIs(t, state.Validate(), ErrInvalidShares)

	state.NumberOfShares = 1
	require.ErrorIs(t, state.Validate(), ErrInvalidShares)

	state.NumberOfShares = 2
	state.ShareSize = math.MaxUint64/2 + 1
	require.ErrorIs(t, state.Validate(), ErrThresholdOverflow)

	state.ShareSize = math.MaxUint64 / 2
	require.NoError(t, state.Validate())
}

func TestDistributor_State_Threshold(t *testing.T) {
	t.Parallel()

	state := sampleState()
	require.Equal(t, uint64(5_000_000_000), state.Threshold())

	state.ShareSize = 0
	require.Zero(t, state.Threshold())
}

func TestDistributor_State_DistributeInstructionData(t *testing.T) {
	t.Parallel()

	data := DistributeInstructionData()
	require.Len(t, data, 8)

	sum := sha256.Sum256([]byte("global:distribute"))
	require.Equal(t, sum[:8], data)
}
