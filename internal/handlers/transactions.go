// Package handlers implements the callbackd HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/synapse-core/ipgate"
	"github.com/synapse-core/ipgate/internal/events"
	"github.com/synapse-core/ipgate/internal/idempotency"
	"github.com/synapse-core/ipgate/internal/transaction"
)

const (
	defaultLimit   = 20
	maxLimit       = 100
	maxBodyBytes   = 1 << 20
	healthyTimeout = 2 * time.Second
)

// Store is the persistence the handlers need.
type Store interface {
	Insert(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	List(ctx context.Context, limit, offset int) ([]transaction.Transaction, error)
	Search(ctx context.Context, f transaction.Filter) ([]transaction.Transaction, error)
	Ping(ctx context.Context) error
}

// Handler serves transaction callbacks and queries.
type Handler struct {
	store     Store
	guard     idempotency.Guard
	publisher events.Publisher
	logger    *slog.Logger
	validate  *validator.Validate
}

// New creates a Handler. A nil guard or publisher disables that step.
func New(store Store, guard idempotency.Guard, publisher events.Publisher, logger *slog.Logger) *Handler {
	if guard == nil {
		guard = idempotency.Noop()
	}
	if publisher == nil {
		publisher = events.Noop()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		store:     store,
		guard:     guard,
		publisher: publisher,
		logger:    logger,
		validate:  newValidator(),
	}
}

// Callback handles POST /callbacks/transactions.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CallbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", validationDetails(err)...)
		return
	}

	claimed := false
	if req.AnchorTransactionID != "" {
		ok, err := h.guard.Claim(ctx, req.AnchorTransactionID)
		if err != nil {
			h.logger.ErrorContext(ctx, "idempotency check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "idempotency check unavailable")
			return
		}
		if !ok {
			writeError(w, http.StatusConflict, "duplicate callback")
			return
		}
		claimed = true
	}

	tx := transaction.New(req.StellarAccount, req.Amount, req.AssetCode,
		optional(req.AnchorTransactionID), optional(req.CallbackType), optional(req.CallbackStatus))

	stored, err := h.store.Insert(ctx, tx)
	if err != nil {
		if errors.Is(err, transaction.ErrDuplicateAnchorID) {
			writeError(w, http.StatusConflict, "duplicate callback")
			return
		}
		if claimed {
			if rerr := h.guard.Release(context.WithoutCancel(ctx), req.AnchorTransactionID); rerr != nil {
				h.logger.WarnContext(ctx, "failed to release idempotency key", "error", rerr)
			}
		}
		h.logger.ErrorContext(ctx, "failed to store transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store transaction")
		return
	}

	h.publish(ctx, stored)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) publish(ctx context.Context, tx *transaction.Transaction) {
	ev := events.CallbackEvent{
		TransactionID:       tx.ID,
		AnchorTransactionID: deref(tx.AnchorTransactionID),
		StellarAccount:      tx.StellarAccount,
		Amount:              tx.Amount,
		AssetCode:           tx.AssetCode,
		CallbackType:        deref(tx.CallbackType),
		CallbackStatus:      deref(tx.CallbackStatus),
		RequestID:           middleware.GetReqID(ctx),
		ReceivedAt:          time.Now().UTC(),
	}
	if addr, ok := ipgate.ClientAddrFromContext(ctx); ok {
		ev.ClientAddr = addr.String()
	}
	if err := events.PublishCallback(h.publisher, ev); err != nil {
		h.logger.WarnContext(ctx, "callback event not published", "transaction_id", tx.ID, "error", err)
	}
}

// List handles GET /transactions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// Search handles GET /transactions/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	txs, err := h.store.Search(r.Context(), transaction.Filter{
		Status:         q.Get("status"),
		AssetCode:      q.Get("asset_code"),
		StellarAccount: q.Get("stellar_account"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to search transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// Get handles GET /transactions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	tx, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get transaction")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthyTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type paginationError string

func (e paginationError) Error() string { return string(e) }

func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return 0, 0, paginationError("limit must be between 1 and " + strconv.Itoa(maxLimit))
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, paginationError("offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
