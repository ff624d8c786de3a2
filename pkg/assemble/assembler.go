// Package assemble turns a winner set into one signed, fee-priced
// distribute transaction and submits it.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"

	"github.com/markerlabs/distributor/pkg/dstate"
	"github.com/markerlabs/distributor/pkg/feeapi"
	"github.com/markerlabs/distributor/pkg/ledger"
	"github.com/markerlabs/distributor/pkg/metrics"
)

// maxTransactionSize is the protocol's packet limit. The size is logged as
// an observability signal; oversized submissions fail at the RPC boundary.
const maxTransactionSize = 1232

const defaultComputeUnitLimit = 800_000

type AssemblerConfig struct {
	Logger *slog.Logger
	Ledger ledger.Client
	Fees   feeapi.Client

	ProgramID solana.PublicKey
	StateAddr solana.PublicKey
	State     dstate.State

	Payer     solana.PrivateKey
	Authority solana.PrivateKey

	Memo             string
	ComputeUnitLimit uint32
}

func (cfg *AssemblerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger client is required")
	}
	if cfg.Fees == nil {
		return errors.New("fee client is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.StateAddr.IsZero() {
		return errors.New("distributor state address is required")
	}
	if cfg.Payer == nil {
		return errors.New("payer keypair is required")
	}
	if cfg.Authority == nil {
		return errors.New("authority keypair is required")
	}
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = defaultComputeUnitLimit
	}
	return nil
}

type Assembler struct {
	log *slog.Logger
	cfg AssemblerConfig

	payerPub     solana.PublicKey
	authorityPub solana.PublicKey
}

func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Assembler{
		log:          cfg.Logger,
		cfg:          cfg,
		payerPub:     cfg.Payer.PublicKey(),
		authorityPub: cfg.Authority.PublicKey(),
	}, nil
}

// Distribute builds, signs, and submits the distribution transaction for the
// given winners. The priority fee is fetched fresh per round; a fee-API
// failure fails the round rather than submitting at a guessed price.
func (a *Assembler) Distribute(ctx context.Context, winners []solana.PublicKey) (solana.Signature, error) {
	price, err := a.cfg.Fees.RecentPriorityFee(ctx, []solana.PublicKey{a.cfg.ProgramID})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to fetch priority fee: %w", err)
	}

	instructions, err := a.BuildInstructions(winners, price)
	if err != nil {
		return solana.Signature{}, err
	}

	// Fetched immediately before signing; a stale blockhash gets the whole
	// transaction rejected ledger-side.
	blockhash, err := a.cfg.Ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(a.payerPub))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		switch key {
		case a.payerPub:
			return &a.cfg.Payer
		case a.authorityPub:
			return &a.cfg.Authority
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if serialized, err := tx.MarshalBinary(); err == nil {
		metrics.TransactionSizeBytes.Observe(float64(len(serialized)))
		a.log.Info("assemble: transaction serialized", "size", len(serialized), "max", maxTransactionSize)
	}

	sig, err := a.cfg.Ledger.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// BuildInstructions assembles the compute budget directives, memo, and the
// distribute instruction itself. The distribute instruction carries the
// static program accounts followed by exactly two accounts per winner
// (holder authority, then that holder's associated token account for the
// distributed mint), in winner order; the program re-derives each pair and
// rejects the transaction on any mismatch.
func (a *Assembler) BuildInstructions(winners []solana.PublicKey, priorityFee uint64) ([]solana.Instruction, error) {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.payerPub, true, true),
		solana.NewAccountMeta(a.authorityPub, false, true),
		solana.NewAccountMeta(a.cfg.StateAddr, false, false),
		solana.NewAccountMeta(a.cfg.State.Mint, true, false),
		solana.NewAccountMeta(a.cfg.State.Vault, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	}
	for _, winner := range winners {
		ata, _, err := solana.FindAssociatedTokenAddress(winner, a.cfg.State.Mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive token account for winner %s: %w", winner, err)
		}
		accounts = append(accounts,
			solana.NewAccountMeta(winner, false, false),
			solana.NewAccountMeta(ata, true, false),
		)
	}

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(a.cfg.ComputeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(priorityFee).Build(),
	}
	if a.cfg.Memo != "" {
		instructions = append(instructions,
			solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{}, []byte(a.cfg.Memo)))
	}
	instructions = append(instructions,
		solana.NewInstruction(a.cfg.ProgramID, accounts, dstate.DistributeInstructionData()))

	return instructions, nil
}
