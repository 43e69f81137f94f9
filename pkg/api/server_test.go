package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"github.com/hyunjk/orderflow/pkg/conn"
	"github.com/hyunjk/orderflow/pkg/ledger"
	"github.com/hyunjk/orderflow/pkg/orders"
	"github.com/hyunjk/orderflow/pkg/wallet"
)

var (
	buyerAddr    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	merchantAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	fujiID       = big.NewInt(43113)
)

// stubLedger backs the dispatcher and connect probe in handler tests.
type stubLedger struct {
	transitionErr error
}

func (l *stubLedger) OrderCount(ctx context.Context) (uint64, error) { return 0, nil }

func (l *stubLedger) GetOrder(ctx context.Context, id uint64) (ledger.Order, error) {
	return ledger.Order{}, ledger.ErrNotFound
}

func (l *stubLedger) CreateOrder(ctx context.Context, merchant common.Address, typ ledger.OrderType, paymentRef string, amount uint64) (ledger.TxHandle, error) {
	return stubHandle{}, nil
}

func (l *stubLedger) Transition(ctx context.Context, kind ledger.TransitionKind, id uint64) (ledger.TxHandle, error) {
	if l.transitionErr != nil {
		return nil, l.transitionErr
	}
	return stubHandle{}, nil
}

func (l *stubLedger) WatchEvents(ctx context.Context, sink chan<- ledger.Event) (event.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (l *stubLedger) Close() {}

type stubHandle struct{}

func (stubHandle) Hash() common.Hash              { return common.Hash{} }
func (stubHandle) Wait(ctx context.Context) error { return nil }

type stubWallet struct {
	accountsFeed event.Feed
	chainFeed    event.Feed
	scope        event.SubscriptionScope
}

func (w *stubWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{buyerAddr}, nil
}

func (w *stubWallet) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(fujiID), nil
}

func (w *stubWallet) SwitchChain(ctx context.Context, chainID *big.Int) error { return nil }

func (w *stubWallet) AddChain(ctx context.Context, params wallet.ChainParams) error { return nil }

func (w *stubWallet) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) { return nil, nil }

func (w *stubWallet) RPCURL() string { return "http://localhost:8545" }

func (w *stubWallet) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return w.scope.Track(w.accountsFeed.Subscribe(ch))
}

func (w *stubWallet) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return w.scope.Track(w.chainFeed.Subscribe(ch))
}

type nopRefresher struct{}

func (nopRefresher) Kick() {}

type fixture struct {
	server  *Server
	store   *orders.Store
	manager *conn.Manager
}

// newFixture wires a server over a fresh store. connected controls whether
// a session exists and the dispatch yields a dispatcher.
func newFixture(t *testing.T, connected bool, lc *stubLedger) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := orders.NewStore()

	manager := conn.NewManager(conn.ManagerConfig{
		Wallet: &stubWallet{},
		Chain:  wallet.ChainParams{ChainID: fujiID, Name: "Avalanche Fuji Testnet", RPCURLs: []string{"http://localhost:8545"}},
		Open: func(ctx context.Context, account common.Address, chainID *big.Int) (ledger.API, error) {
			return lc, nil
		},
		Timeout: time.Second,
		Log:     log,
	})
	t.Cleanup(manager.Close)

	var dispatch Dispatch = func() *orders.Dispatcher { return nil }
	if connected {
		session, err := manager.Connect(context.Background())
		if err != nil {
			t.Fatalf("Connect() = %v", err)
		}
		d := orders.NewDispatcher(session, store, nopRefresher{}, log)
		dispatch = func() *orders.Dispatcher { return d }
	}

	server := NewServer(store, dispatch, manager, []string{"http://localhost:3000"}, log)
	return &fixture{server: server, store: store, manager: manager}
}

func (f *fixture) seed(ords ...ledger.Order) {
	snap := make(map[uint64]ledger.Order, len(ords))
	for _, o := range ords {
		snap[o.ID] = o
	}
	f.store.Replace(snap, uint64(len(ords)))
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func order(id uint64, typ ledger.OrderType, st ledger.Status) ledger.Order {
	return ledger.Order{
		ID: id, Buyer: buyerAddr, Merchant: merchantAddr,
		Type: typ, PaymentRef: "pay@upi", Amount: 100, Status: st,
	}
}

func TestListOrders(t *testing.T) {
	f := newFixture(t, false, &stubLedger{})
	f.seed(order(1, ledger.Buy, ledger.Created), order(2, ledger.Sell, ledger.Completed))

	rec := f.do(t, "GET", "/api/v1/orders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Count  uint64      `json:"count"`
		Orders []OrderInfo `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Orders) != 2 {
		t.Fatalf("count = %d, orders = %d", resp.Count, len(resp.Orders))
	}
	if resp.Orders[0].ID != 1 || resp.Orders[0].Status != "created" {
		t.Fatalf("first order = %+v", resp.Orders[0])
	}
	if resp.Orders[1].OrderType != "sell" {
		t.Fatalf("second order type = %s", resp.Orders[1].OrderType)
	}
}

func TestListOrdersFilters(t *testing.T) {
	f := newFixture(t, false, &stubLedger{})
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	o3 := order(3, ledger.Buy, ledger.Created)
	o3.Buyer = other
	f.seed(order(1, ledger.Buy, ledger.Created), order(2, ledger.Buy, ledger.Completed), o3)

	tests := []struct {
		query string
		want  int
	}{
		{"?buyer=" + buyerAddr.Hex(), 2},
		{"?buyer=" + other.Hex(), 1},
		{"?merchant=" + merchantAddr.Hex(), 3},
		{"?status=created", 2},
		{"?status=completed", 1},
	}
	for _, tt := range tests {
		rec := f.do(t, "GET", "/api/v1/orders"+tt.query, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, rec.Code)
		}
		var resp struct {
			Orders []OrderInfo `json:"orders"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", tt.query, err)
		}
		if len(resp.Orders) != tt.want {
			t.Fatalf("%s: got %d orders, want %d", tt.query, len(resp.Orders), tt.want)
		}
	}

	if rec := f.do(t, "GET", "/api/v1/orders?status=bogus", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status filter = %d, want 400", rec.Code)
	}
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t, false, &stubLedger{})
	f.seed(order(7, ledger.Buy, ledger.CounterpartyPaid))

	rec := f.do(t, "GET", "/api/v1/orders/7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info OrderInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ID != 7 || info.Status != "counterparty_paid" {
		t.Fatalf("order = %+v", info)
	}

	if rec := f.do(t, "GET", "/api/v1/orders/99", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing order = %d, want 404", rec.Code)
	}
}

func TestSubmitRequiresSession(t *testing.T) {
	f := newFixture(t, false, &stubLedger{})
	f.seed(order(1, ledger.Buy, ledger.Created))

	rec := f.do(t, "POST", "/api/v1/orders/1/transition", TransitionRequest{Action: "buyerMarkPaid"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("transition while disconnected = %d, want 503", rec.Code)
	}

	rec = f.do(t, "POST", "/api/v1/orders", CreateOrderRequest{
		Merchant: merchantAddr.Hex(), OrderType: "buy", PaymentRef: "pay@upi", Amount: 100,
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("create while disconnected = %d, want 503", rec.Code)
	}
}

func TestTransitionAccepted(t *testing.T) {
	f := newFixture(t, true, &stubLedger{})
	f.seed(order(1, ledger.Buy, ledger.Created))

	rec := f.do(t, "POST", "/api/v1/orders/1/transition", TransitionRequest{Action: "buyerMarkPaid"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestTransitionErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		seed   ledger.Order
		action string
		id     string
		ledErr error
		want   int
	}{
		// order is completed: no rule matches, refused locally
		{"invalid transition", order(1, ledger.Buy, ledger.Completed), "buyerMarkPaid", "1", nil, http.StatusConflict},
		{"unknown order", ledger.Order{}, "buyerMarkPaid", "42", nil, http.StatusNotFound},
		{"tx timeout", order(1, ledger.Buy, ledger.Created), "buyerMarkPaid", "1", ledger.ErrTxTimeout, http.StatusGatewayTimeout},
		{"tx rejected", order(1, ledger.Buy, ledger.Created), "buyerMarkPaid", "1", ledger.ErrTxRejected, http.StatusBadGateway},
		{"bad action", order(1, ledger.Buy, ledger.Created), "teleport", "1", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true, &stubLedger{transitionErr: tt.ledErr})
			if tt.seed.ID != 0 {
				f.seed(tt.seed)
			}
			rec := f.do(t, "POST", "/api/v1/orders/"+tt.id+"/transition", TransitionRequest{Action: tt.action})
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t, true, &stubLedger{})

	rec := f.do(t, "POST", "/api/v1/orders", CreateOrderRequest{
		Merchant: merchantAddr.Hex(), OrderType: "sell", PaymentRef: "pay@upi", Amount: 2500,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	rec = f.do(t, "POST", "/api/v1/orders", CreateOrderRequest{
		Merchant: merchantAddr.Hex(), OrderType: "swap", PaymentRef: "pay@upi", Amount: 2500,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown order type = %d, want 400", rec.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	f := newFixture(t, false, &stubLedger{})
	rec := f.do(t, "GET", "/api/v1/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Connected {
		t.Fatal("reported connected without a session")
	}

	f = newFixture(t, true, &stubLedger{})
	rec = f.do(t, "GET", "/api/v1/session", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !info.Connected || info.Account != buyerAddr.Hex() || info.ChainID != "43113" {
		t.Fatalf("session info = %+v", info)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false, &stubLedger{})
	rec := f.do(t, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnknownTransitionErrorIs500(t *testing.T) {
	f := newFixture(t, true, &stubLedger{transitionErr: errors.New("rpc exploded")})
	f.seed(order(1, ledger.Buy, ledger.Created))

	rec := f.do(t, "POST", "/api/v1/orders/1/transition", TransitionRequest{Action: "buyerMarkPaid"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
