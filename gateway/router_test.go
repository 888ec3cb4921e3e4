package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/crypto"
	"escrowd/escrow"
	"escrowd/gateway/middleware"
	"escrowd/state"
	"escrowd/storage"
)

type gatewayEnv struct {
	engine *escrow.Engine
	state  *state.EscrowState
	http   *httptest.Server
	now    int64

	buyer    crypto.Address
	retailer crypto.Address
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	st := state.NewEscrowState(storage.NewMemDB())
	engine := escrow.NewEngine(st)
	env := &gatewayEnv{engine: engine, state: st, now: 1_000}
	engine.SetNowFunc(func() int64 { return env.now })

	buyerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	retailerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	env.buyer = buyerKey.PubKey().Address()
	env.retailer = retailerKey.PubKey().Address()
	require.NoError(t, st.Mint(env.buyer.Raw(), 1_000))

	handler := New(Config{
		Engine:      engine,
		State:       st,
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimit{RequestsPerMinute: 6_000, Burst: 100}),
		Obs:         middleware.NewObservability(),
	})
	env.http = httptest.NewServer(handler)
	t.Cleanup(env.http.Close)
	return env
}

func (env *gatewayEnv) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}
	resp, err := http.Post(env.http.URL+path, "application/json", reader)
	require.NoError(t, err)
	return resp
}

func decodeEscrow(t *testing.T, resp *http.Response) escrowResponse {
	t.Helper()
	defer resp.Body.Close()
	var out escrowResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGatewaySettlementFlow(t *testing.T) {
	env := newGatewayEnv(t)

	resp := env.post(t, "/v1/escrows", createRequest{
		ID: 1, Buyer: env.buyer.String(), Retailer: env.retailer.String(), Amount: 100,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeEscrow(t, resp)
	require.Equal(t, "awaiting_delivery", created.Status)
	require.Equal(t, uint64(100), created.CustodyBalance)

	resp = env.post(t, "/v1/escrows/1/confirm-delivery", actorRequest{Caller: env.retailer.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	confirmed := decodeEscrow(t, resp)
	require.Equal(t, "awaiting_confirmation", confirmed.Status)

	resp = env.post(t, "/v1/escrows/1/confirm-receipt", actorRequest{Caller: env.buyer.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	completed := decodeEscrow(t, resp)
	require.Equal(t, "completed", completed.Status)
	require.Zero(t, completed.CustodyBalance)
}

func TestGatewayGet(t *testing.T) {
	env := newGatewayEnv(t)

	resp := env.post(t, "/v1/escrows", createRequest{
		ID: 9, Buyer: env.buyer.String(), Retailer: env.retailer.String(), Amount: 25,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(env.http.URL + "/v1/escrows/9")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	rec := decodeEscrow(t, getResp)
	require.Equal(t, uint64(9), rec.ID)
	require.Equal(t, env.buyer.String(), rec.Buyer)

	missing, err := http.Get(env.http.URL + "/v1/escrows/404")
	require.NoError(t, err)
	defer missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	malformed, err := http.Get(env.http.URL + "/v1/escrows/not-a-number")
	require.NoError(t, err)
	defer malformed.Body.Close()
	require.Equal(t, http.StatusBadRequest, malformed.StatusCode)
}

func TestGatewayAutoRelease(t *testing.T) {
	env := newGatewayEnv(t)

	env.post(t, "/v1/escrows", createRequest{
		ID: 2, Buyer: env.buyer.String(), Retailer: env.retailer.String(), Amount: 50,
	}).Body.Close()
	env.post(t, "/v1/escrows/2/confirm-delivery", actorRequest{Caller: env.retailer.String()}).Body.Close()

	resp := env.post(t, "/v1/escrows/2/auto-release", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	env.now += 8 * 24 * 60 * 60
	resp = env.post(t, "/v1/escrows/2/auto-release", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "completed", decodeEscrow(t, resp).Status)
}

func TestGatewayDomainErrorStatuses(t *testing.T) {
	env := newGatewayEnv(t)

	env.post(t, "/v1/escrows", createRequest{
		ID: 3, Buyer: env.buyer.String(), Retailer: env.retailer.String(), Amount: 10,
	}).Body.Close()

	// duplicate
	resp := env.post(t, "/v1/escrows", createRequest{
		ID: 3, Buyer: env.buyer.String(), Retailer: env.retailer.String(), Amount: 10,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// wrong caller
	resp = env.post(t, "/v1/escrows/3/confirm-delivery", actorRequest{Caller: env.buyer.String()})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// bad address
	resp = env.post(t, "/v1/escrows", createRequest{ID: 4, Buyer: "bogus", Retailer: env.retailer.String(), Amount: 10})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGatewayHealthAndRequestID(t *testing.T) {
	env := newGatewayEnv(t)

	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
}

func TestGatewayRateLimit(t *testing.T) {
	st := state.NewEscrowState(storage.NewMemDB())
	engine := escrow.NewEngine(st)
	handler := New(Config{
		Engine:      engine,
		State:       st,
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimit{RequestsPerMinute: 60, Burst: 2}),
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := http.Get(fmt.Sprintf("%s/v1/escrows/%d", server.URL, i))
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	require.True(t, limited, "burst of 5 against burst budget 2 should throttle")
}
