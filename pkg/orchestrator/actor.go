// Package orchestrator serializes distribution attempts. However many
// triggers arrive concurrently, exactly one round body runs at a time, so
// two rounds can never race on burning the same vault tokens or duplicate a
// payout.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/markerlabs/distributor/pkg/dstate"
	"github.com/markerlabs/distributor/pkg/ingest"
	"github.com/markerlabs/distributor/pkg/ledger"
	"github.com/markerlabs/distributor/pkg/metrics"
)

type TriggerKind int

const (
	// TriggerObserved carries transaction evidence pushed by an indexing
	// webhook; the vault balance is extracted from it without an RPC call.
	TriggerObserved TriggerKind = iota
	// TriggerExplicit carries no payload; the vault balance is fetched from
	// the ledger.
	TriggerExplicit
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerObserved:
		return "observed"
	case TriggerExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// Trigger is one mailbox event. Records is only meaningful for
// TriggerObserved.
type Trigger struct {
	Kind    TriggerKind
	Records []ingest.TransactionRecord
}

// Directory is the holder-directory surface the actor drives during a round.
type Directory interface {
	RefreshCount(ctx context.Context) error
	DrawWinners(ctx context.Context, n uint64) ([]solana.PublicKey, error)
	Count() uint64
}

// Distributor submits one assembled distribution transaction.
type Distributor interface {
	Distribute(ctx context.Context, winners []solana.PublicKey) (solana.Signature, error)
}

type ActorConfig struct {
	Logger    *slog.Logger
	Ledger    ledger.Client
	Directory Directory
	Assembler Distributor
	State     dstate.State
}

func (cfg *ActorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger client is required")
	}
	if cfg.Directory == nil {
		return errors.New("holder directory is required")
	}
	if cfg.Assembler == nil {
		return errors.New("assembler is required")
	}
	if err := cfg.State.Validate(); err != nil {
		return fmt.Errorf("invalid distributor state: %w", err)
	}
	return nil
}

// Actor owns all mutable cross-round state. Run is its single execution
// thread; everything the actor touches during a round is touched only from
// there.
type Actor struct {
	log *slog.Logger
	cfg ActorConfig

	mailbox *mailbox

	readyOnce sync.Once
	readyCh   chan struct{}
}

func NewActor(cfg ActorConfig) (*Actor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Actor{
		log:     cfg.Logger,
		cfg:     cfg,
		mailbox: newMailbox(),
		readyCh: make(chan struct{}),
	}, nil
}

// Submit enqueues a trigger. It never blocks and never fails while the
// process is alive; events submitted after Run has returned sit in the
// mailbox unprocessed.
func (a *Actor) Submit(t Trigger) {
	metrics.TriggerEventsTotal.WithLabelValues(t.Kind.String()).Inc()
	a.mailbox.put(t)
}

// Ready reports whether the processing loop has started.
func (a *Actor) Ready() bool {
	select {
	case <-a.readyCh:
		return true
	default:
		return false
	}
}

// Run consumes the mailbox until ctx is done. Each trigger is handled
// end-to-end before the next is dequeued; a failed round is logged and
// abandoned, never retried, and never stops the loop. The same underlying
// condition re-triggers naturally on the next inbound event.
func (a *Actor) Run(ctx context.Context) error {
	a.readyOnce.Do(func() { close(a.readyCh) })
	a.log.Info("orchestrator: starting", "threshold", a.cfg.State.Threshold())

	for {
		trigger, ok := a.mailbox.next(ctx)
		if !ok {
			a.log.Info("orchestrator: stopping", "reason", ctx.Err(), "pending", a.mailbox.depth())
			return nil
		}
		if err := a.handle(ctx, trigger); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			a.log.Warn("orchestrator: failed to handle trigger", "kind", trigger.Kind.String(), "error", err)
			metrics.RoundsTotal.WithLabelValues("error").Inc()
		}
	}
}

func (a *Actor) handle(ctx context.Context, trigger Trigger) error {
	balance, ok, err := a.vaultBalance(ctx, trigger)
	if err != nil {
		return err
	}
	if !ok {
		a.log.Debug("orchestrator: no vault balance in trigger evidence, ignoring")
		metrics.RoundsTotal.WithLabelValues("noop").Inc()
		return nil
	}
	return a.distribute(ctx, balance)
}

func (a *Actor) vaultBalance(ctx context.Context, trigger Trigger) (uint64, bool, error) {
	switch trigger.Kind {
	case TriggerObserved:
		balance, found := ingest.LatestVaultBalance(a.log, a.cfg.State.Vault, trigger.Records)
		return balance, found, nil
	case TriggerExplicit:
		balance, err := ledger.FetchTokenBalance(ctx, a.cfg.Ledger, a.cfg.State.Vault)
		if err != nil {
			return 0, false, fmt.Errorf("failed to fetch vault balance: %w", err)
		}
		return balance, true, nil
	default:
		return 0, false, fmt.Errorf("unknown trigger kind %d", trigger.Kind)
	}
}

func (a *Actor) distribute(ctx context.Context, vaultBalance uint64) error {
	threshold := a.cfg.State.Threshold()
	if vaultBalance < threshold {
		a.log.Info("orchestrator: threshold not reached", "balance", vaultBalance, "threshold", threshold)
		metrics.RoundsTotal.WithLabelValues("below_threshold").Inc()
		return nil
	}

	round := uuid.NewString()
	start := time.Now()
	a.log.Info("orchestrator: threshold reached, distributing",
		"round", round, "balance", vaultBalance, "threshold", threshold)

	if err := a.cfg.Directory.RefreshCount(ctx); err != nil {
		return fmt.Errorf("round %s: failed to refresh holder count: %w", round, err)
	}
	a.log.Info("orchestrator: holder count refreshed", "round", round, "holders", a.cfg.Directory.Count())

	winners, err := a.cfg.Directory.DrawWinners(ctx, a.cfg.State.NumberOfShares-1)
	if err != nil {
		return fmt.Errorf("round %s: failed to draw winners: %w", round, err)
	}
	a.log.Info("orchestrator: winners selected", "round", round, "count", len(winners))

	sig, err := a.cfg.Assembler.Distribute(ctx, winners)
	if err != nil {
		return fmt.Errorf("round %s: failed to distribute: %w", round, err)
	}

	metrics.RoundsTotal.WithLabelValues("success").Inc()
	metrics.RoundDuration.Observe(time.Since(start).Seconds())
	a.log.Info("orchestrator: distribution transaction sent", "round", round, "signature", sig.String())
	return nil
}
