// Package rpc exposes the resolver operations over HTTP for operator tooling
// and off-chain relays. Privileged endpoints require the operator bearer
// token; lifecycle pass-throughs are open because the escrow itself enforces
// access control.
package rpc

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crosslock/native/escrow"
	"crosslock/native/resolver"
	"crosslock/observability/metrics"
)

// Server wires the resolver and the two factories behind an HTTP router.
type Server struct {
	log           *slog.Logger
	resolver      *resolver.Resolver
	srcFactory    *escrow.Factory
	dstFactory    *escrow.Factory
	operatorToken string
}

// NewServer creates an RPC server for the given resolver.
func NewServer(log *slog.Logger, res *resolver.Resolver, srcFactory, dstFactory *escrow.Factory, operatorToken string) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:           log,
		resolver:      res,
		srcFactory:    srcFactory,
		dstFactory:    dstFactory,
		operatorToken: operatorToken,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/escrow/address", s.handleAddressOf)
		r.Post("/escrow/withdraw", s.handleWithdraw)
		r.Post("/escrow/cancel", s.handleCancel)
		r.Post("/escrow/rescue", s.handleRescue)

		r.Group(func(r chi.Router) {
			r.Use(s.requireOperator)
			r.Post("/resolver/deploy-src", s.handleDeploySrc)
			r.Post("/resolver/deploy-dst", s.handleDeployDst)
			r.Post("/resolver/calls", s.handleArbitraryCalls)
		})
	})
	return r
}

type ctxKey string

const requestIDKey ctxKey = "requestID"

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(contextWithRequestID(r.Context(), id)))
	})
}

func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.operatorToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.operatorToken)) != 1 {
			s.writeError(w, r, http.StatusForbidden, errors.New("operator token required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type addressOfParams struct {
	Side       string         `json:"side"`
	Immutables immutablesJSON `json:"immutables"`
}

type addressOfResult struct {
	Address string `json:"address"`
	ID      string `json:"id"`
}

func (s *Server) handleAddressOf(w http.ResponseWriter, r *http.Request) {
	var params addressOfParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(params.Side)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	imm, err := params.Immutables.decode()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var addr common.Address
	if side == escrow.SideSrc {
		addr = s.srcFactory.AddressOfEscrowSrc(imm)
	} else {
		addr = s.dstFactory.AddressOfEscrowDst(imm)
	}
	s.writeJSON(w, addressOfResult{Address: addr.Hex(), ID: imm.Hash().Hex()})
}

type deploySrcParams struct {
	Caller     string         `json:"caller"`
	Immutables immutablesJSON `json:"immutables"`
	Complement complementJSON `json:"complement"`
	Order      orderJSON      `json:"order"`
	Signature  string         `json:"signature"`
	Amount     string         `json:"amount"`
	Threshold  string         `json:"threshold"`
}

type deployResult struct {
	Address string `json:"address"`
	ID      string `json:"id"`
}

func (s *Server) handleDeploySrc(w http.ResponseWriter, r *http.Request) {
	var params deploySrcParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	imm, err := params.Immutables.decode()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	comp, err := params.Complement.decode()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	order, err := params.Order.decode()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	signature, err := hex.DecodeString(strings.TrimPrefix(params.Signature, "0x"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("invalid signature encoding"))
		return
	}
	amount, err := parseBig(params.Amount, "amount")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	traits := resolver.TakerTraits{}
	if strings.TrimSpace(params.Threshold) != "" {
		if traits.Threshold, err = parseBig(params.Threshold, "threshold"); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}
	esc, err := s.resolver.DeploySrc(caller, imm, comp, order, signature, amount, traits)
	if err != nil {
		metrics.Swap().RecordResolverCall("deploySrc", "error")
		s.writeDomainError(w, r, err)
		return
	}
	metrics.Swap().RecordResolverCall("deploySrc", "ok")
	s.writeJSON(w, deployResult{Address: esc.Address.Hex(), ID: esc.ID.Hex()})
}

type deployDstParams struct {
	Caller          string         `json:"caller"`
	Immutables      immutablesJSON `json:"immutables"`
	SrcCancellation uint32         `json:"srcCancellation"`
}

func (s *Server) handleDeployDst(w http.ResponseWriter, r *http.Request) {
	var params deployDstParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	imm, err := params.Immutables.decode()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	esc, err := s.resolver.DeployDst(caller, imm, params.SrcCancellation)
	if err != nil {
		metrics.Swap().RecordResolverCall("deployDst", "error")
		s.writeDomainError(w, r, err)
		return
	}
	metrics.Swap().RecordResolverCall("deployDst", "ok")
	s.writeJSON(w, deployResult{Address: esc.Address.Hex(), ID: esc.ID.Hex()})
}

type lifecycleParams struct {
	Side       string         `json:"side"`
	Address    string         `json:"address"`
	Caller     string         `json:"caller"`
	Secret     string         `json:"secret,omitempty"`
	Token      string         `json:"token,omitempty"`
	Amount     string         `json:"amount,omitempty"`
	Immutables immutablesJSON `json:"immutables"`
}

func (s *Server) decodeLifecycle(r *http.Request) (escrow.Side, common.Address, common.Address, *escrow.Immutables, *lifecycleParams, error) {
	var params lifecycleParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		return 0, common.Address{}, common.Address{}, nil, nil, err
	}
	side, err := parseSide(params.Side)
	if err != nil {
		return 0, common.Address{}, common.Address{}, nil, nil, err
	}
	addr, err := parseAddress(params.Address, "address")
	if err != nil {
		return 0, common.Address{}, common.Address{}, nil, nil, err
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		return 0, common.Address{}, common.Address{}, nil, nil, err
	}
	imm, err := params.Immutables.decode()
	if err != nil {
		return 0, common.Address{}, common.Address{}, nil, nil, err
	}
	return side, addr, caller, imm, &params, nil
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	side, addr, caller, imm, params, err := s.decodeLifecycle(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	secretHash, err := parseHash(params.Secret, "secret")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.resolver.Withdraw(side, addr, caller, [32]byte(secretHash), imm); err != nil {
		metrics.Swap().RecordResolverCall("withdraw", "error")
		s.writeDomainError(w, r, err)
		return
	}
	metrics.Swap().RecordResolverCall("withdraw", "ok")
	s.writeJSON(w, map[string]string{"status": "withdrawn"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	side, addr, caller, imm, _, err := s.decodeLifecycle(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.resolver.Cancel(side, addr, caller, imm); err != nil {
		metrics.Swap().RecordResolverCall("cancel", "error")
		s.writeDomainError(w, r, err)
		return
	}
	metrics.Swap().RecordResolverCall("cancel", "ok")
	s.writeJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleRescue(w http.ResponseWriter, r *http.Request) {
	side, addr, caller, imm, params, err := s.decodeLifecycle(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	token, err := parseAddress(params.Token, "token")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseBig(params.Amount, "amount")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.resolver.Rescue(side, addr, caller, token, amount, imm); err != nil {
		metrics.Swap().RecordResolverCall("rescue", "error")
		s.writeDomainError(w, r, err)
		return
	}
	metrics.Swap().RecordResolverCall("rescue", "ok")
	s.writeJSON(w, map[string]string{"status": "rescued"})
}

type arbitraryCallsParams struct {
	Caller   string   `json:"caller"`
	Targets  []string `json:"targets"`
	Payloads []string `json:"payloads"`
}

func (s *Server) handleArbitraryCalls(w http.ResponseWriter, r *http.Request) {
	var params arbitraryCallsParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	targets := make([]common.Address, len(params.Targets))
	for i, raw := range params.Targets {
		if targets[i], err = parseAddress(raw, "target"); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}
	payloads := make([][]byte, len(params.Payloads))
	for i, raw := range params.Payloads {
		if payloads[i], err = hex.DecodeString(strings.TrimPrefix(raw, "0x")); err != nil {
			s.writeError(w, r, http.StatusBadRequest, errors.New("invalid payload encoding"))
			return
		}
	}
	if err := s.resolver.ArbitraryCalls(caller, targets, payloads); err != nil {
		metrics.Swap().RecordResolverCall("arbitraryCalls", "error")
		s.writeDomainError(w, r, err)
		return
	}
	metrics.Swap().RecordResolverCall("arbitraryCalls", "ok")
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.log.Warn("rpc request failed",
		"path", r.URL.Path,
		"requestId", requestIDFromContext(r.Context()),
		"err", err,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeDomainError maps the protocol error taxonomy onto HTTP statuses so
// callers can tell a bad request from a window that has not opened yet.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, resolver.ErrUnauthorized), errors.Is(err, escrow.ErrInvalidCaller):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrInvalidTime), errors.Is(err, escrow.ErrInvalidCreationTime),
		errors.Is(err, escrow.ErrEscrowCompleted), errors.Is(err, escrow.ErrEscrowExists):
		status = http.StatusConflict
	case errors.Is(err, escrow.ErrInvalidSecret), errors.Is(err, escrow.ErrInvalidImmutables),
		errors.Is(err, escrow.ErrInvalidFillProof), errors.Is(err, resolver.ErrLengthMismatch),
		errors.Is(err, escrow.ErrInsufficientEscrowBalance):
		status = http.StatusBadRequest
	case errors.Is(err, escrow.ErrEscrowNotFound):
		status = http.StatusNotFound
	}
	s.writeError(w, r, status, err)
}
