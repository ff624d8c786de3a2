// Package ingest turns batches of confirmed-transaction records, as pushed
// by an indexing webhook, into the one number the orchestrator cares about:
// the vault balance after the most recent transaction touching it.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

var (
	errVaultNotReferenced = errors.New("vault not found in transaction account keys")
	errNoMeta             = errors.New("transaction has no meta field")
	errNoPostBalances     = errors.New("transaction has no post token balances")
)

// TransactionRecord is the slice of the ledger's transaction-history JSON
// schema this service reads. The schema is fixed externally; unknown fields
// are ignored.
type TransactionRecord struct {
	Transaction TransactionEnvelope `json:"transaction"`
}

type TransactionEnvelope struct {
	Transaction TransactionBody  `json:"transaction"`
	Meta        *TransactionMeta `json:"meta"`
}

type TransactionBody struct {
	Message Message `json:"message"`
}

type Message struct {
	AccountKeys []string `json:"accountKeys"`
}

type TransactionMeta struct {
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

type TokenBalance struct {
	AccountIndex  uint16        `json:"accountIndex"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

type UITokenAmount struct {
	Amount string `json:"amount"`
}

// VaultBalance extracts the vault's post-transaction balance from a single
// record. It fails when the record does not reference the vault, carries no
// token-balance metadata, or the amount is not an unsigned integer.
func VaultBalance(vault solana.PublicKey, record TransactionRecord) (uint64, error) {
	vaultPosition := -1
	for i, key := range record.Transaction.Transaction.Message.AccountKeys {
		if key == vault.String() {
			vaultPosition = i
			break
		}
	}
	if vaultPosition < 0 {
		return 0, errVaultNotReferenced
	}

	if record.Transaction.Meta == nil {
		return 0, errNoMeta
	}
	if len(record.Transaction.Meta.PostTokenBalances) == 0 {
		return 0, errNoPostBalances
	}

	for _, balance := range record.Transaction.Meta.PostTokenBalances {
		if int(balance.AccountIndex) != vaultPosition {
			continue
		}
		amount, err := strconv.ParseUint(balance.UITokenAmount.Amount, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse vault balance %q: %w", balance.UITokenAmount.Amount, err)
		}
		return amount, nil
	}
	return 0, fmt.Errorf("no post token balance entry for vault at position %d", vaultPosition)
}

// LatestVaultBalance scans a batch in order and returns the balance implied
// by the last record that successfully yields one. Records that do not
// mention the vault are skipped silently; records with broken metadata are
// skipped with a log line. The second return is false when no record in the
// batch yields a balance.
func LatestVaultBalance(log *slog.Logger, vault solana.PublicKey, records []TransactionRecord) (uint64, bool) {
	var (
		balance uint64
		found   bool
	)
	for i, record := range records {
		amount, err := VaultBalance(vault, record)
		if err != nil {
			if !errors.Is(err, errVaultNotReferenced) {
				log.Warn("ingest: skipping record", "index", i, "error", err)
			}
			continue
		}
		balance = amount
		found = true
	}
	return balance, found
}
