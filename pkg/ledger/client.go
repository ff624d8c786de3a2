// Package ledger wraps the Solana RPC surface the distribution core depends
// on, so the orchestrator and assembler can be exercised against mocks.
package ledger

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

type Client interface {
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// RPC is the production Client backed by a JSON-RPC endpoint. All reads and
// submissions use confirmed commitment.
type RPC struct {
	rpc *solanarpc.Client
}

func NewRPC(endpoint string) *RPC {
	return &RPC{rpc: solanarpc.New(endpoint)}
}

func (c *RPC) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &solanarpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: solanarpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %w", account, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("account %s not found", account)
	}
	return out.Value.Data.GetBinary(), nil
}

func (c *RPC) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, solanarpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

func (c *RPC) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: solanarpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// FetchTokenBalance reads a token account and returns its amount. Used for
// the vault when an explicit trigger arrives with no transaction evidence.
func FetchTokenBalance(ctx context.Context, client Client, account solana.PublicKey) (uint64, error) {
	data, err := client.GetAccountData(ctx, account)
	if err != nil {
		return 0, err
	}
	var tokenAccount token.Account
	if err := bin.NewBinDecoder(data).Decode(&tokenAccount); err != nil {
		return 0, fmt.Errorf("failed to decode token account %s: %w", account, err)
	}
	return tokenAccount.Amount, nil
}
