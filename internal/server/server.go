package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jkaflik/brunt2mqtt/internal/account"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/jkaflik/brunt2mqtt/internal/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// ApproveFunc brings an inbox entry online. The entry is only marked accepted
// when it returns nil.
type ApproveFunc func(dev *store.Device) error

type Options struct {
	Tracker   *status.Tracker
	Inbox     *store.Inbox
	Accounts  *account.Manager
	Registry  *prometheus.Registry
	OnApprove ApproveFunc

	CORSOrigins []string
}

// NewRouter serves health, metrics, status and the discovery inbox.
func NewRouter(opts Options) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Use(cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)

	router.Get("/health", HealthHandler)
	if opts.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	h := &handlers{opts: opts}
	router.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/inbox", h.inbox)
		r.Post("/inbox/{uid}/approve", h.approve)

		if opts.Accounts != nil {
			r.Get("/accounts", h.accounts)
			r.Post("/accounts/{uid}/refresh", h.refresh)
			r.Post("/accounts/{uid}/scan", h.scan)
		}
	})

	return router
}

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type handlers struct {
	opts Options
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.opts.Tracker.All())
}

func (h *handlers) inbox(w http.ResponseWriter, _ *http.Request) {
	devices, err := h.opts.Inbox.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	dev, err := h.opts.Inbox.Get(uid)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if h.opts.OnApprove != nil {
		if err := h.opts.OnApprove(dev); err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
	}

	if dev, err = h.opts.Inbox.Approve(uid); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("%s: approved", dev.ThingUID)
	writeJSON(w, http.StatusOK, dev)
}

type accountView struct {
	UID    string      `json:"uid"`
	Name   string      `json:"name"`
	Status status.Info `json:"status"`
}

func (h *handlers) accounts(w http.ResponseWriter, _ *http.Request) {
	accounts := h.opts.Accounts.Accounts()
	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, accountView{UID: acc.UID(), Name: acc.Name(), Status: acc.Status()})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	acc, found := h.opts.Accounts.Account(uid)
	if !found {
		writeError(w, http.StatusNotFound, errors.Errorf("account %s not registered", uid))
		return
	}
	writeJSON(w, http.StatusOK, acc.Refresh(r.Context()))
}

func (h *handlers) scan(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	svc, found := h.opts.Accounts.Discovery(uid)
	if !found {
		writeError(w, http.StatusNotFound, errors.Errorf("account %s not registered", uid))
		return
	}

	results, err := svc.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("http: encode response: %s", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
