// Package holders discovers how many holders a marker token has and samples
// random winners from them, without ever materializing the full holder list.
// The backing listing API is paginated, so both operations work page by
// page.
package holders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"

	"github.com/markerlabs/distributor/pkg/metrics"
)

var (
	// ErrTooManyPages bounds worst-case discovery latency when the backend
	// keeps returning full pages.
	ErrTooManyPages = errors.New("holder listing exceeded the page scan ceiling")

	// ErrInsufficientHolders means the requested draw size is not strictly
	// smaller than the holder population.
	ErrInsufficientHolders = errors.New("not enough holders for the requested draw")

	// ErrSamplingExhausted means repeated draws kept landing on already
	// selected holders and the bounded retry budget ran out.
	ErrSamplingExhausted = errors.New("sampling retry budget exhausted without enough distinct holders")
)

const (
	defaultPageSize = 1000
	defaultMaxPages = 2000

	// maxDrawPasses bounds the number of top-up rounds DrawWinners performs
	// when drawn indices resolve to duplicate owner addresses.
	maxDrawPasses = 8
)

type DirectoryConfig struct {
	Logger  *slog.Logger
	Listing ListingClient
	Store   CountStore // optional; best-effort persistence of the count
	Mint    solana.PublicKey

	PageSize uint64
	MaxPages uint64
	Limiter  *rate.Limiter // optional; applied to every page fetch

	// RandUint64N returns a uniform value in [0, n). Injectable for tests;
	// defaults to math/rand/v2.
	RandUint64N func(n uint64) uint64
}

func (cfg *DirectoryConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Listing == nil {
		return errors.New("listing client is required")
	}
	if cfg.Mint.IsZero() {
		return errors.New("marker mint is required")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.RandUint64N == nil {
		cfg.RandUint64N = rand.Uint64N
	}
	return nil
}

// Directory caches the holder count for one marker mint. It is not safe for
// concurrent use: the orchestrator's single execution thread is the only
// caller, which is what makes the unlocked count mutation correct.
type Directory struct {
	log *slog.Logger
	cfg DirectoryConfig

	holders uint64
}

func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Directory{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Count returns the cached holder count from the last successful discovery
// pass, or the persisted value loaded at startup.
func (d *Directory) Count() uint64 {
	return d.holders
}

// LoadPersisted seeds the cached count from the durable store. Absent rows
// leave the count at zero, which makes the next discovery start from page 1.
func (d *Directory) LoadPersisted(ctx context.Context) error {
	if d.cfg.Store == nil {
		return nil
	}
	count, err := d.cfg.Store.Load(ctx, d.cfg.Mint)
	if err != nil {
		return fmt.Errorf("failed to load persisted holder count: %w", err)
	}
	d.holders = count
	d.log.Info("holders: loaded persisted count", "mint", d.cfg.Mint, "count", count)
	return nil
}

// RefreshCount rescans the listing until it finds the short final page, then
// replaces the cached count and persists it best-effort. Scanning resumes
// from the page implied by the cached count rather than page 1, on the
// assumption that the population only grows between refreshes.
func (d *Directory) RefreshCount(ctx context.Context) error {
	start := time.Now()
	count, err := d.discover(ctx)
	if err != nil {
		return err
	}
	metrics.HolderRefreshDuration.Observe(time.Since(start).Seconds())
	metrics.HoldersDiscovered.Set(float64(count))

	d.holders = count
	if d.cfg.Store != nil {
		if err := d.cfg.Store.Upsert(ctx, d.cfg.Mint, count); err != nil {
			d.log.Warn("holders: failed to persist count", "mint", d.cfg.Mint, "count", count, "error", err)
		}
	}
	return nil
}

func (d *Directory) discover(ctx context.Context) (uint64, error) {
	for page := d.holders/d.cfg.PageSize + 1; page < d.cfg.MaxPages; page++ {
		result, err := d.fetchPage(ctx, page)
		if err != nil {
			return 0, err
		}
		if result.Total < d.cfg.PageSize {
			return d.cfg.PageSize*(page-1) + result.Total, nil
		}
	}
	return 0, fmt.Errorf("%w (ceiling %d)", ErrTooManyPages, d.cfg.MaxPages)
}

// DrawWinners returns n distinct holder addresses drawn uniformly from the
// cached population. Indices are drawn without replacement, and owners that
// resolve to an address already selected are replaced by further draws, so
// the result never contains duplicates. Winners come back in index order,
// which has no relationship to draw order.
func (d *Directory) DrawWinners(ctx context.Context, n uint64) ([]solana.PublicKey, error) {
	if n >= d.holders {
		return nil, fmt.Errorf("%w: requested %d of %d holders", ErrInsufficientHolders, n, d.holders)
	}

	chosenIdx := make(map[uint64]struct{}, n)
	seen := make(map[solana.PublicKey]struct{}, n)
	winners := make([]solana.PublicKey, 0, n)

	for pass := 0; uint64(len(winners)) < n; pass++ {
		if pass == maxDrawPasses {
			return nil, fmt.Errorf("%w: %d of %d after %d passes", ErrSamplingExhausted, len(winners), n, pass)
		}

		indices, err := d.drawIndices(n-uint64(len(winners)), chosenIdx)
		if err != nil {
			return nil, err
		}
		owners, err := d.resolveIndices(ctx, indices)
		if err != nil {
			return nil, err
		}
		for _, owner := range owners {
			if _, dup := seen[owner]; dup {
				continue
			}
			seen[owner] = struct{}{}
			winners = append(winners, owner)
			if uint64(len(winners)) == n {
				break
			}
		}
	}
	return winners, nil
}

// drawIndices picks count fresh uniform indices from [0, holders) that are
// not in chosen, adding them to chosen as it goes. Rejection sampling is
// bounded so a pathological random source cannot spin forever.
func (d *Directory) drawIndices(count uint64, chosen map[uint64]struct{}) ([]uint64, error) {
	if d.holders-uint64(len(chosen)) < count {
		return nil, fmt.Errorf("%w: only %d unchosen indices left, need %d",
			ErrSamplingExhausted, d.holders-uint64(len(chosen)), count)
	}

	indices := make([]uint64, 0, count)
	maxAttempts := 64*count + 100
	for attempts := uint64(0); uint64(len(indices)) < count; attempts++ {
		if attempts == maxAttempts {
			return nil, fmt.Errorf("%w: %d rejection attempts", ErrSamplingExhausted, attempts)
		}
		idx := d.cfg.RandUint64N(d.holders)
		if _, taken := chosen[idx]; taken {
			continue
		}
		chosen[idx] = struct{}{}
		indices = append(indices, idx)
	}
	return indices, nil
}

// resolveIndices maps sorted indices to owner addresses, fetching each page
// at most once no matter how many indices fall on it.
func (d *Directory) resolveIndices(ctx context.Context, indices []uint64) ([]solana.PublicKey, error) {
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	owners := make([]solana.PublicKey, 0, len(indices))
	for i := 0; i < len(indices); {
		page := indices[i]/d.cfg.PageSize + 1

		result, err := d.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		for ; i < len(indices) && indices[i]/d.cfg.PageSize+1 == page; i++ {
			offset := indices[i] % d.cfg.PageSize
			if offset >= uint64(len(result.Owners)) {
				return nil, fmt.Errorf("index %d beyond page %d with %d records; holder count is stale",
					indices[i], page, len(result.Owners))
			}
			owners = append(owners, result.Owners[offset])
		}
	}
	return owners, nil
}

func (d *Directory) fetchPage(ctx context.Context, page uint64) (Page, error) {
	if d.cfg.Limiter != nil {
		if err := d.cfg.Limiter.Wait(ctx); err != nil {
			return Page{}, fmt.Errorf("rate limiter interrupted: %w", err)
		}
	}
	result, err := d.cfg.Listing.GetTokenAccounts(ctx, d.cfg.Mint, page, d.cfg.PageSize)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list holders page %d: %w", page, err)
	}
	return result, nil
}
