package keypair

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

// Standard BIP-39 test phrase.
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDistributor_Keypair_Parse(t *testing.T) {
	t.Parallel()

	t.Run("base58 full secret key", func(t *testing.T) {
		t.Parallel()

		want := solana.NewWallet().PrivateKey
		got, err := Parse(base58.Encode(want))
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("base58 seed", func(t *testing.T) {
		t.Parallel()

		seed := make([]byte, ed25519.SeedSize)
		for i := range seed {
			seed[i] = byte(i)
		}
		got, err := Parse(base58.Encode(seed))
		require.NoError(t, err)
		require.Equal(t, solana.PrivateKey(ed25519.NewKeyFromSeed(seed)), got)
	})

	t.Run("solana-keygen JSON array", func(t *testing.T) {
		t.Parallel()

		want := solana.NewWallet().PrivateKey

		// solana-keygen writes a numeric array, not the base64 form
		// json.Marshal would produce for []byte.
		nums := make([]uint16, len(want))
		for i, b := range want {
			nums[i] = uint16(b)
		}
		arrayJSON, err := json.Marshal(nums)
		require.NoError(t, err)

		got, err := Parse(string(arrayJSON))
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("mnemonic derives a stable signing key", func(t *testing.T) {
		t.Parallel()

		first, err := Parse(testMnemonic)
		require.NoError(t, err)
		require.Len(t, []byte(first), ed25519.PrivateKeySize)

		second, err := Parse(testMnemonic)
		require.NoError(t, err)
		require.Equal(t, first, second)

		// The derived key must actually sign.
		message := []byte("distribution round")
		signature := ed25519.Sign(ed25519.PrivateKey(first), message)
		require.True(t, ed25519.Verify(ed25519.PublicKey(first.PublicKey().Bytes()), message, signature))
	})

	t.Run("rejects unusable secrets", func(t *testing.T) {
		t.Parallel()

		_, err := Parse("")
		require.Error(t, err)

		_, err = Parse("not a key at all")
		require.Error(t, err)

		// Valid base58, wrong length.
		_, err = Parse(base58.Encode([]byte{1, 2, 3}))
		require.Error(t, err)

		// Valid JSON, wrong length.
		_, err = Parse("[1,2,3]")
		require.Error(t, err)
	})
}

func TestDistributor_Keypair_DeriveEd25519(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i * 3)
	}

	root, err := deriveEd25519(seed, nil)
	require.NoError(t, err)
	require.Len(t, root, 32)

	child, err := deriveEd25519(seed, solanaDerivationPath)
	require.NoError(t, err)
	require.Len(t, child, 32)
	require.NotEqual(t, root, child)

	// Different accounts on the same seed diverge.
	sibling, err := deriveEd25519(seed, []uint32{44, 501, 1, 0})
	require.NoError(t, err)
	require.NotEqual(t, child, sibling)

	// Same path is deterministic.
	again, err := deriveEd25519(seed, solanaDerivationPath)
	require.NoError(t, err)
	require.Equal(t, child, again)
}
