package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/tripmate/points-ledger/internal/api/handlers"
	"github.com/tripmate/points-ledger/internal/api/httpx"
	"github.com/tripmate/points-ledger/internal/config"
	"github.com/tripmate/points-ledger/internal/metrics"
	"github.com/tripmate/points-ledger/internal/middleware"
	"github.com/tripmate/points-ledger/internal/models"
	"github.com/tripmate/points-ledger/internal/repository"
	"github.com/tripmate/points-ledger/internal/services"
)

type RouterDeps struct {
	Cfg     config.Config
	Auth    *handlers.AuthHandler
	AuthMW  *middleware.AuthMiddleware
	Ledger  *services.LedgerService
	Ranking *services.RankingService
	Users   *services.UserService
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", d.Auth.Register)
		r.Post("/auth/login", d.Auth.Login)
		r.Post("/auth/refresh", d.Auth.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(d.AuthMW.Auth)

			r.Get("/points/balance", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				b, err := d.Ledger.GetBalance(r.Context(), uid)
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, b)
			})

			r.Get("/points/rank", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				rank, err := d.Ranking.RankOf(r.Context(), uid)
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]int{"rank": rank})
			})

			r.Get("/points/history", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				f, limit, offset, err := historyQuery(r)
				if err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
					return
				}
				page, err := d.Ledger.History(r.Context(), uid, f, limit, offset)
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, page)
			})

			r.Get("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
				txn, err := d.Ledger.GetTransaction(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
					return
				}
				uid, _ := middleware.UserID(r.Context())
				role, _ := middleware.Role(r.Context())
				if txn.UserID != uid && role != models.RoleAdmin {
					httpx.WriteError(w, http.StatusForbidden, "forbidden", "not your transaction", nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, txn)
			})

			r.Post("/points/earn", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				req, err := decodeLedgerReq(r)
				if err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
					return
				}
				txn, err := d.Ledger.Earn(r.Context(), uid, req.Amount, models.PointSource(req.Source), req.ref(), req.Description)
				writeLedgerResult(w, txn, err)
			})

			r.Post("/points/spend", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				req, err := decodeLedgerReq(r)
				if err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
					return
				}
				txn, err := d.Ledger.Spend(r.Context(), uid, req.Amount, models.PointSource(req.Source), req.ref(), req.Description)
				writeLedgerResult(w, txn, err)
			})

			r.Post("/points/transfer", func(w http.ResponseWriter, r *http.Request) {
				uid, _ := middleware.UserID(r.Context())
				var req struct {
					ToUserID    string `json:"to_user_id"`
					Amount      int64  `json:"amount"`
					Description string `json:"description"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToUserID == "" {
					httpx.WriteError(w, http.StatusBadRequest, "bad_request", "to_user_id and amount required", nil)
					return
				}
				out, in, err := d.Ledger.Transfer(r.Context(), uid, req.ToUserID, req.Amount, req.Description)
				if err != nil {
					status, code := ledgerStatus(err)
					httpx.WriteError(w, status, code, err.Error(), nil)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, map[string]models.PointTransaction{
					"out": out,
					"in":  in,
				})
			})

			r.Get("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
				limit := 10
				if v := r.URL.Query().Get("limit"); v != "" {
					if n, err := strconv.Atoi(v); err == nil && n > 0 {
						limit = n
					}
				}
				top, err := d.Ranking.Leaderboard(r.Context(), limit)
				if err != nil {
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, top)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))

				r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
					users, err := d.Users.List(r.Context())
					if err != nil {
						httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
						return
					}
					httpx.WriteJSON(w, http.StatusOK, users)
				})

				r.Post("/points/grant", func(w http.ResponseWriter, r *http.Request) {
					adminID, _ := middleware.UserID(r.Context())
					var req struct {
						UserID      string `json:"user_id"`
						Amount      int64  `json:"amount"`
						Description string `json:"description"`
					}
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
						httpx.WriteError(w, http.StatusBadRequest, "bad_request", "user_id and amount required", nil)
						return
					}
					txn, err := d.Ledger.Grant(r.Context(), adminID, req.UserID, req.Amount, req.Description)
					writeLedgerResult(w, txn, err)
				})

				r.Post("/rank/recalculate", func(w http.ResponseWriter, r *http.Request) {
					if err := d.Ranking.RecalculateAll(r.Context()); err != nil {
						httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
						return
					}
					httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "recalculated"})
				})

				r.Post("/season/reset", func(w http.ResponseWriter, r *http.Request) {
					if err := d.Ranking.ResetSeason(r.Context()); err != nil {
						httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
						return
					}
					httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "season reset"})
				})
			})
		})
	})

	return r
}

type ledgerReq struct {
	Amount        int64  `json:"amount"`
	Source        string `json:"source"`
	ReferenceID   *int64 `json:"reference_id"`
	ReferenceType string `json:"reference_type"`
	Description   string `json:"description"`
}

func (q ledgerReq) ref() *models.Reference {
	if q.ReferenceID == nil || q.ReferenceType == "" {
		return nil
	}
	return &models.Reference{ID: *q.ReferenceID, Type: q.ReferenceType}
}

func decodeLedgerReq(r *http.Request) (ledgerReq, error) {
	var req ledgerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ledgerReq{}, errors.New("invalid body")
	}
	if !models.PointSource(req.Source).Valid() {
		return ledgerReq{}, errors.New("unknown source")
	}
	return req, nil
}

func writeLedgerResult(w http.ResponseWriter, txn models.PointTransaction, err error) {
	if err != nil {
		status, code := ledgerStatus(err)
		httpx.WriteError(w, status, code, err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, txn)
}

// ledgerStatus maps ledger sentinels to stable HTTP codes.
func ledgerStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, models.ErrSelfTransfer):
		return http.StatusBadRequest, "self_transfer"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}

func historyQuery(r *http.Request) (models.HistoryFilter, int, int, error) {
	var f models.HistoryFilter
	q := r.URL.Query()

	if v := q.Get("type"); v != "" {
		t := models.TransactionType(v)
		if !t.Valid() {
			return f, 0, 0, errors.New("unknown type")
		}
		f.Type = &t
	}
	if v := q.Get("source"); v != "" {
		s := models.PointSource(v)
		if !s.Valid() {
			return f, 0, 0, errors.New("unknown source")
		}
		f.Source = &s
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, 0, 0, errors.New(name + " must be RFC3339")
			}
			*dst = &t
		}
	}

	limit, offset := 0, 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return f, limit, offset, nil
}
