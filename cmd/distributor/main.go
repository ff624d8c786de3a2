package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gagliardetto/solana-go"

	"github.com/markerlabs/distributor/pkg/assemble"
	"github.com/markerlabs/distributor/pkg/dstate"
	"github.com/markerlabs/distributor/pkg/feeapi"
	"github.com/markerlabs/distributor/pkg/holders"
	"github.com/markerlabs/distributor/pkg/keypair"
	"github.com/markerlabs/distributor/pkg/ledger"
	"github.com/markerlabs/distributor/pkg/logger"
	"github.com/markerlabs/distributor/pkg/metrics"
	"github.com/markerlabs/distributor/pkg/orchestrator"
	"github.com/markerlabs/distributor/pkg/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", "0.0.0.0:8080", "HTTP listen address (or set LISTEN_ADDR env var)")

	rpcURLFlag := flag.String("rpc-url", "", "Solana RPC endpoint (or set SOLANA_RPC_URL env var)")
	heliusURLFlag := flag.String("helius-url", "", "Helius RPC endpoint for holder listing and fee estimates; defaults to --rpc-url (or set HELIUS_RPC_URL env var)")

	stateAddrFlag := flag.String("distributor-state", "", "distributor state account address (or set DISTRIBUTOR_STATE env var)")
	programIDFlag := flag.String("program-id", "", "distributor program id (or set PROGRAM_ID env var)")
	memoFlag := flag.String("memo", "", "memo attached to every distribution transaction (or set MEMO env var)")

	databaseURLFlag := flag.String("database-url", "", "Postgres connection string for holder count persistence; optional (or set DATABASE_URL env var)")
	pollIntervalFlag := flag.Duration("poll-interval", 0, "interval between self-issued explicit triggers; 0 disables polling (or set POLL_INTERVAL env var)")
	listingRateFlag := flag.Duration("listing-min-interval", 100*time.Millisecond, "minimum interval between holder listing page fetches")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "maximum time to wait for graceful shutdown")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	log := logger.New(*verboseFlag)

	if env := os.Getenv("LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}
	if env := os.Getenv("SOLANA_RPC_URL"); env != "" {
		*rpcURLFlag = env
	}
	if env := os.Getenv("HELIUS_RPC_URL"); env != "" {
		*heliusURLFlag = env
	}
	if env := os.Getenv("DISTRIBUTOR_STATE"); env != "" {
		*stateAddrFlag = env
	}
	if env := os.Getenv("PROGRAM_ID"); env != "" {
		*programIDFlag = env
	}
	if env := os.Getenv("MEMO"); env != "" {
		*memoFlag = env
	}
	if env := os.Getenv("DATABASE_URL"); env != "" {
		*databaseURLFlag = env
	}
	if env := os.Getenv("POLL_INTERVAL"); env != "" {
		interval, err := time.ParseDuration(env)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		*pollIntervalFlag = interval
	}

	if *rpcURLFlag == "" {
		return fmt.Errorf("--rpc-url is required")
	}
	if *heliusURLFlag == "" {
		*heliusURLFlag = *rpcURLFlag
	}

	payer, err := keypair.Parse(os.Getenv("PAYER_KEYPAIR"))
	if err != nil {
		return fmt.Errorf("failed to parse PAYER_KEYPAIR: %w", err)
	}
	authority, err := keypair.Parse(os.Getenv("DISTRIBUTOR_AUTHORITY_KEYPAIR"))
	if err != nil {
		return fmt.Errorf("failed to parse DISTRIBUTOR_AUTHORITY_KEYPAIR: %w", err)
	}
	stateAddr, err := solana.PublicKeyFromBase58(*stateAddrFlag)
	if err != nil {
		return fmt.Errorf("invalid distributor state address: %w", err)
	}
	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rpcClient := ledger.NewRPC(*rpcURLFlag)

	state, err := dstate.Fetch(ctx, rpcClient, stateAddr)
	if err != nil {
		return fmt.Errorf("failed to fetch distributor state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("on-chain distributor state is invalid: %w", err)
	}
	if !state.DistributorAuthority.Equals(authority.PublicKey()) {
		return fmt.Errorf("configured authority %s does not match on-chain authority %s",
			authority.PublicKey(), state.DistributorAuthority)
	}

	var countStore holders.CountStore
	if *databaseURLFlag != "" {
		if err := holders.RunMigrations(log, *databaseURLFlag); err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, *databaseURLFlag)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		defer pool.Close()
		countStore, err = holders.NewPGStore(log, pool)
		if err != nil {
			return err
		}
	}

	directory, err := holders.NewDirectory(holders.DirectoryConfig{
		Logger:  log,
		Listing: holders.NewHeliusListing(*heliusURLFlag),
		Store:   countStore,
		Mint:    state.MarkerMint,
		Limiter: rate.NewLimiter(rate.Every(*listingRateFlag), 1),
	})
	if err != nil {
		return fmt.Errorf("failed to create holder directory: %w", err)
	}
	if err := directory.LoadPersisted(ctx); err != nil {
		return err
	}

	assembler, err := assemble.NewAssembler(assemble.AssemblerConfig{
		Logger:    log,
		Ledger:    rpcClient,
		Fees:      feeapi.NewHeliusClient(*heliusURLFlag),
		ProgramID: programID,
		StateAddr: stateAddr,
		State:     state,
		Payer:     payer,
		Authority: authority,
		Memo:      *memoFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create assembler: %w", err)
	}

	actor, err := orchestrator.NewActor(orchestrator.ActorConfig{
		Logger:    log,
		Ledger:    rpcClient,
		Directory: directory,
		Assembler: assembler,
		State:     state,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		Orchestrator:    actor,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo:     server.VersionInfo{Version: version, Commit: commit, Date: date},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	log.Info("distributor backend setup complete",
		"payer", payer.PublicKey(),
		"authority", authority.PublicKey(),
		"state", stateAddr,
		"vault", state.Vault,
		"marker_mint", state.MarkerMint,
		"threshold", state.Threshold())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return actor.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	if *pollIntervalFlag > 0 {
		poller, err := orchestrator.NewPoller(orchestrator.PollerConfig{
			Logger:   log,
			Actor:    actor,
			Interval: *pollIntervalFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create poller: %w", err)
		}
		g.Go(func() error { return poller.Run(ctx) })
	}
	return g.Wait()
}
