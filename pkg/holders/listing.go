package holders

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Page is one page of the paginated holder listing. Total is the number of
// records matched by this call, not the global total.
type Page struct {
	Total  uint64
	Owners []solana.PublicKey
}

// ListingClient is the paginated token-accounts-by-mint API. Pages are
// 1-based.
type ListingClient interface {
	GetTokenAccounts(ctx context.Context, mint solana.PublicKey, page, limit uint64) (Page, error)
}

type getTokenAccountsRequest struct {
	Mint  string `json:"mint"`
	Page  uint64 `json:"page"`
	Limit uint64 `json:"limit"`
}

type getTokenAccountsResponse struct {
	Total         uint64 `json:"total"`
	TokenAccounts []struct {
		Owner string `json:"owner"`
	} `json:"token_accounts"`
}

// HeliusListing implements ListingClient against the getTokenAccounts RPC
// method.
type HeliusListing struct {
	rpc jsonrpc.RPCClient
}

func NewHeliusListing(endpoint string) *HeliusListing {
	return &HeliusListing{rpc: jsonrpc.NewClient(endpoint)}
}

func (c *HeliusListing) GetTokenAccounts(ctx context.Context, mint solana.PublicKey, page, limit uint64) (Page, error) {
	var resp getTokenAccountsResponse
	err := c.rpc.CallForInto(ctx, &resp, "getTokenAccounts", []interface{}{
		getTokenAccountsRequest{Mint: mint.String(), Page: page, Limit: limit},
	})
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch token accounts page %d: %w", page, err)
	}

	owners := make([]solana.PublicKey, len(resp.TokenAccounts))
	for i, account := range resp.TokenAccounts {
		owner, err := solana.PublicKeyFromBase58(account.Owner)
		if err != nil {
			return Page{}, fmt.Errorf("malformed owner address %q on page %d: %w", account.Owner, page, err)
		}
		owners[i] = owner
	}
	return Page{Total: resp.Total, Owners: owners}, nil
}
