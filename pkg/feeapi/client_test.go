package feeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// newRPCServer serves a single JSON-RPC method. The handler returns either a
// result payload or an error message.
func newRPCServer(t *testing.T, handler func(req rpcRequest) (any, string)) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, errMsg := handler(req)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if errMsg != "" {
			resp["error"] = map[string]any{"code": -32000, "message": errMsg}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// paramsObject extracts the request's single params object, tolerating both
// bare-object and one-element-array encodings.
func paramsObject(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()

	var asArray []map[string]any
	if err := json.Unmarshal(raw, &asArray); err == nil {
		require.Len(t, asArray, 1)
		return asArray[0]
	}
	var asObject map[string]any
	require.NoError(t, json.Unmarshal(raw, &asObject))
	return asObject
}

func TestDistributor_FeeAPI_RecentPriorityFee(t *testing.T) {
	t.Parallel()

	program := solana.NewWallet().PublicKey()

	t.Run("truncates the estimate to whole micro-lamports", func(t *testing.T) {
		t.Parallel()

		srv := newRPCServer(t, func(req rpcRequest) (any, string) {
			require.Equal(t, "getPriorityFeeEstimate", req.Method)

			params := paramsObject(t, req.Params)
			require.Equal(t, []any{program.String()}, params["accountKeys"])

			return map[string]any{"priorityFeeEstimate": 123.9}, ""
		})

		fee, err := NewHeliusClient(srv.URL).RecentPriorityFee(context.Background(), []solana.PublicKey{program})
		require.NoError(t, err)
		require.Equal(t, uint64(123), fee)
	})

	t.Run("passes a zero estimate through", func(t *testing.T) {
		t.Parallel()

		srv := newRPCServer(t, func(req rpcRequest) (any, string) {
			return map[string]any{"priorityFeeEstimate": 0}, ""
		})

		fee, err := NewHeliusClient(srv.URL).RecentPriorityFee(context.Background(), []solana.PublicKey{program})
		require.NoError(t, err)
		require.Zero(t, fee)
	})

	t.Run("rejects a negative estimate", func(t *testing.T) {
		t.Parallel()

		srv := newRPCServer(t, func(req rpcRequest) (any, string) {
			return map[string]any{"priorityFeeEstimate": -5.0}, ""
		})

		_, err := NewHeliusClient(srv.URL).RecentPriorityFee(context.Background(), []solana.PublicKey{program})
		require.Error(t, err)
	})

	t.Run("surfaces rpc errors", func(t *testing.T) {
		t.Parallel()

		srv := newRPCServer(t, func(req rpcRequest) (any, string) {
			return nil, "method not available on this plan"
		})

		_, err := NewHeliusClient(srv.URL).RecentPriorityFee(context.Background(), []solana.PublicKey{program})
		require.Error(t, err)
	})

	t.Run("fails when the endpoint is unreachable", func(t *testing.T) {
		t.Parallel()

		srv := newRPCServer(t, func(req rpcRequest) (any, string) { return nil, "" })
		srv.Close()

		_, err := NewHeliusClient(srv.URL).RecentPriorityFee(context.Background(), []solana.PublicKey{program})
		require.Error(t, err)
	})
}
