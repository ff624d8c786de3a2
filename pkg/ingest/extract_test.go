package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

const testVaultAddr = "2xNweLHLqrbx4zo1waDvgWJHgsUpPj8Y8icbAFeR4a8i"

// recordJSON renders a webhook record in the ledger's enhanced-history shape.
// Unrelated fields carried by the real payload are included to make sure the
// decoder tolerates them.
func recordJSON(accountKeys []string, postBalances string) string {
	keys, _ := json.Marshal(accountKeys)
	return fmt.Sprintf(`{
		"blockTime": 1756400000,
		"slot": 310000000,
		"transaction": {
			"meta": {
				"err": null,
				"fee": 5000,
				"postTokenBalances": %s
			},
			"transaction": {
				"message": {
					"accountKeys": %s,
					"instructions": []
				},
				"signatures": ["5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"]
			}
		}
	}`, postBalances, keys)
}

func decodeRecords(t *testing.T, docs ...string) []TransactionRecord {
	t.Helper()
	batch := "[" + docs[0]
	for _, doc := range docs[1:] {
		batch += "," + doc
	}
	batch += "]"

	var records []TransactionRecord
	require.NoError(t, json.Unmarshal([]byte(batch), &records))
	return records
}

func TestDistributor_Ingest_VaultBalance(t *testing.T) {
	t.Parallel()

	vault := solana.MustPublicKeyFromBase58(testVaultAddr)
	payer := solana.NewWallet().PublicKey().String()

	t.Run("extracts the post balance at the vault's account position", func(t *testing.T) {
		t.Parallel()

		records := decodeRecords(t, recordJSON(
			[]string{payer, testVaultAddr},
			`[
				{"accountIndex": 0, "uiTokenAmount": {"amount": "123", "decimals": 9}},
				{"accountIndex": 1, "uiTokenAmount": {"amount": "5000000000", "decimals": 9}}
			]`,
		))

		balance, err := VaultBalance(vault, records[0])
		require.NoError(t, err)
		require.Equal(t, uint64(5000000000), balance)
	})

	t.Run("distinguishes records that never reference the vault", func(t *testing.T) {
		t.Parallel()

		records := decodeRecords(t, recordJSON(
			[]string{payer},
			`[{"accountIndex": 0, "uiTokenAmount": {"amount": "123", "decimals": 9}}]`,
		))

		_, err := VaultBalance(vault, records[0])
		require.ErrorIs(t, err, errVaultNotReferenced)
	})

	t.Run("fails when the record has no meta", func(t *testing.T) {
		t.Parallel()

		doc := fmt.Sprintf(`{"transaction": {"transaction": {"message": {"accountKeys": [%q]}}}}`, testVaultAddr)
		records := decodeRecords(t, doc)

		_, err := VaultBalance(vault, records[0])
		require.ErrorIs(t, err, errNoMeta)
	})

	t.Run("fails when post token balances are empty", func(t *testing.T) {
		t.Parallel()

		records := decodeRecords(t, recordJSON([]string{testVaultAddr}, `[]`))

		_, err := VaultBalance(vault, records[0])
		require.ErrorIs(t, err, errNoPostBalances)
	})

	t.Run("fails when no entry matches the vault position", func(t *testing.T) {
		t.Parallel()

		records := decodeRecords(t, recordJSON(
			[]string{payer, testVaultAddr},
			`[{"accountIndex": 0, "uiTokenAmount": {"amount": "123", "decimals": 9}}]`,
		))

		_, err := VaultBalance(vault, records[0])
		require.Error(t, err)
	})

	t.Run("fails on a non-integer amount", func(t *testing.T) {
		t.Parallel()

		records := decodeRecords(t, recordJSON(
			[]string{testVaultAddr},
			`[{"accountIndex": 0, "uiTokenAmount": {"amount": "5.0", "decimals": 9}}]`,
		))

		_, err := VaultBalance(vault, records[0])
		require.Error(t, err)
	})
}

func TestDistributor_Ingest_LatestVaultBalance(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.DiscardHandler)
	vault := solana.MustPublicKeyFromBase58(testVaultAddr)
	payer := solana.NewWallet().PublicKey().String()

	vaultRecord := func(amount string) string {
		return recordJSON(
			[]string{payer, testVaultAddr},
			fmt.Sprintf(`[{"accountIndex": 1, "uiTokenAmount": {"amount": %q, "decimals": 9}}]`, amount),
		)
	}
	unrelatedRecord := recordJSON(
		[]string{payer},
		`[{"accountIndex": 0, "uiTokenAmount": {"amount": "999", "decimals": 9}}]`,
	)

	t.Run("returns the balance from the last matching record", func(t *testing.T) {
		t.Parallel()

		records := decodeRecords(t,
			vaultRecord("4000000000"),
			unrelatedRecord,
			vaultRecord("5000000000"),
		)

		balance, found := LatestVaultBalance(log, vault, records)
		require.True(t, found)
		require.Equal(t, uint64(5000000000), balance)
	})

	t.Run("skips malformed records and keeps the last good one", func(t *testing.T) {
		t.Parallel()

		records := decodeRecords(t,
			vaultRecord("4000000000"),
			vaultRecord("not-a-number"),
		)

		balance, found := LatestVaultBalance(log, vault, records)
		require.True(t, found)
		require.Equal(t, uint64(4000000000), balance)
	})

	t.Run("reports not found when nothing references the vault", func(t *testing.T) {
		t.Parallel()

		records := decodeRecords(t, unrelatedRecord, unrelatedRecord)

		_, found := LatestVaultBalance(log, vault, records)
		require.False(t, found)
	})

	t.Run("empty batch yields nothing", func(t *testing.T) {
		t.Parallel()

		_, found := LatestVaultBalance(log, vault, nil)
		require.False(t, found)
	})
}
