package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hyunjk/orderflow/pkg/conn"
	"github.com/hyunjk/orderflow/pkg/ledger"
	"github.com/hyunjk/orderflow/pkg/orders"
)

// Dispatch yields the dispatcher for the current session, or nil when
// disconnected. Submissions are refused while disconnected.
type Dispatch func() *orders.Dispatcher

// Server exposes the order cache and the submission paths over REST, plus a
// websocket stream of published snapshots. It only ever reads the store;
// all writes flow through the dispatcher.
type Server struct {
	log      *zap.SugaredLogger
	store    *orders.Store
	dispatch Dispatch
	manager  *conn.Manager
	router   *mux.Router
	hub      *Hub
	origins  []string
}

func NewServer(store *orders.Store, dispatch Dispatch, manager *conn.Manager, origins []string, log *zap.SugaredLogger) *Server {
	s := &Server{
		log:      log,
		store:    store,
		dispatch: dispatch,
		manager:  manager,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		origins:  origins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}/transition", s.handleTransition).Methods("POST")
	api.HandleFunc("/session", s.handleSession).Methods("GET")

	s.router.HandleFunc("/ws", s.hub.serve)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped root handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// BroadcastSnapshot pushes the current cache contents to all websocket
// clients. Wired as the sync engine's publish hook.
func (s *Server) BroadcastSnapshot() {
	s.hub.Broadcast(SnapshotMessage{
		Channel: "orders",
		Count:   s.store.Count(),
		Orders:  toOrderInfos(s.store.All()),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var result []ledger.Order
	switch {
	case q.Get("buyer") != "":
		result = s.store.ByBuyer(common.HexToAddress(q.Get("buyer")))
	case q.Get("merchant") != "":
		result = s.store.ByMerchant(common.HexToAddress(q.Get("merchant")))
	case q.Get("status") != "":
		status, err := parseStatus(q.Get("status"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		result = s.store.ByStatus(status)
	default:
		result = s.store.All()
	}

	s.writeJSON(w, http.StatusOK, struct {
		Count  uint64      `json:"count"`
		Orders []OrderInfo `json:"orders"`
	}{s.store.Count(), toOrderInfos(result)})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	ord, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, ledger.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderInfo(ord))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	d := s.dispatch()
	if d == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("not connected"))
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	typ, err := parseOrderType(req.OrderType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := d.Create(r.Context(), common.HexToAddress(req.Merchant), typ, req.PaymentRef, req.Amount); err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, struct {
		OK bool `json:"ok"`
	}{true})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	d := s.dispatch()
	if d == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("not connected"))
		return
	}

	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	kind, err := parseAction(req.Action)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := d.Transition(r.Context(), kind, id); err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, struct {
		OK bool `json:"ok"`
	}{true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	info := SessionInfo{}
	if sess := s.manager.Session(); sess != nil && sess.Active() {
		info.Connected = true
		info.Account = sess.Account.Hex()
		info.ChainID = sess.ChainID.String()
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{"ok"})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	var invalid *orders.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, ledger.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrTxTimeout):
		s.writeError(w, http.StatusGatewayTimeout, err)
	case errors.Is(err, ledger.ErrTxRejected):
		s.writeError(w, http.StatusBadGateway, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("response_encode_failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}
