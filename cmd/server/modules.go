package main

import (
	"encoding/json"
	"net/http"

	"github.com/tiptoro/gateway/internal/capabilities"
	"github.com/tiptoro/gateway/internal/config"
	"github.com/tiptoro/gateway/internal/contextstore"
	"github.com/tiptoro/gateway/internal/gateway"
	"github.com/tiptoro/gateway/internal/infrastructure"
	"github.com/tiptoro/gateway/internal/records"
)

type Modules struct {
	Records records.System
	Gateway gateway.System
}

// NewModules wires the domain systems: the record store, the capability
// adapters behind the mux, and the gateway with its orchestrators.
func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	recs := records.New(infra.Database.Connection(), infra.Logger)
	store := contextstore.New(infra.Database.Connection(), infra.Logger)

	mux := capabilities.NewMux()

	vision := capabilities.NewVision(
		capabilities.NewClient(cfg.Services.Vision.BaseURL, cfg.Services.Vision.Token),
		infra.Storage,
		infra.Logger,
	)
	vision.Register(mux)

	dedup, err := capabilities.NewDedup(recs, cfg.Services.DedupCacheEntries, infra.Logger)
	if err != nil {
		return nil, err
	}
	dedup.Register(mux)

	capabilities.NewPersist(recs, dedup, infra.Logger).Register(mux)

	llm := capabilities.NewLLM(
		capabilities.NewClient(cfg.Services.LLM.BaseURL, cfg.Services.LLM.Token),
		cfg.Services.LLM,
		recs,
		infra.Logger,
	)
	llm.Register(mux)

	aggregate := capabilities.NewAggregate(recs, infra.Logger)
	aggregate.Register(mux)

	capabilities.NewReport(
		capabilities.NewClient(cfg.Services.Render.BaseURL, cfg.Services.Render.Token),
		infra.Storage,
		aggregate,
		infra.Logger,
	).Register(mux)

	gw, err := gateway.New(&cfg.Pipeline, store, mux, infra.Logger)
	if err != nil {
		return nil, err
	}

	return &Modules{
		Records: recs,
		Gateway: gw,
	}, nil
}

func (m *Modules) Mount(router *http.ServeMux) {
	m.Gateway.Handler().Mount(router)
	m.Records.Handler().Mount(router)
}

func buildRouter(infra *infrastructure.Infrastructure) *http.ServeMux {
	router := http.NewServeMux()

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	router.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !infra.Lifecycle.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	return router
}
