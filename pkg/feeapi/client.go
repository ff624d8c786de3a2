// Package feeapi fetches priority fee estimates from a Helius-style RPC
// endpoint.
package feeapi

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Client answers "what compute-unit price should this transaction carry".
type Client interface {
	RecentPriorityFee(ctx context.Context, accounts []solana.PublicKey) (uint64, error)
}

type priorityFeeEstimateRequest struct {
	AccountKeys []string `json:"accountKeys"`
}

type priorityFeeEstimateResponse struct {
	PriorityFeeEstimate float64 `json:"priorityFeeEstimate"`
}

// HeliusClient implements Client against the getPriorityFeeEstimate RPC
// method.
type HeliusClient struct {
	rpc jsonrpc.RPCClient
}

func NewHeliusClient(endpoint string) *HeliusClient {
	return &HeliusClient{rpc: jsonrpc.NewClient(endpoint)}
}

// RecentPriorityFee asks for an estimate keyed by the given accounts and
// truncates the floating-point answer to a usable micro-lamport price.
func (c *HeliusClient) RecentPriorityFee(ctx context.Context, accounts []solana.PublicKey) (uint64, error) {
	keys := make([]string, len(accounts))
	for i, account := range accounts {
		keys[i] = account.String()
	}

	var resp priorityFeeEstimateResponse
	err := c.rpc.CallForInto(ctx, &resp, "getPriorityFeeEstimate", []interface{}{
		priorityFeeEstimateRequest{AccountKeys: keys},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch priority fee estimate: %w", err)
	}
	if resp.PriorityFeeEstimate < 0 {
		return 0, fmt.Errorf("negative priority fee estimate: %f", resp.PriorityFeeEstimate)
	}
	return uint64(resp.PriorityFeeEstimate), nil
}
