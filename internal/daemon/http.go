package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wellsgz/fwledger/internal/firewall"
)

// newHTTPHandler serves Prometheus metrics plus read-only health and
// verification endpoints.
func newHTTPHandler(reg *prometheus.Registry, fw *firewall.Firewall) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"chain_blocks": fw.Ledger().Size(),
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/chain/verify", func(w http.ResponseWriter, _ *http.Request) {
		report := fw.Verify()
		status := http.StatusOK
		if !report.OK {
			status = http.StatusConflict
		}
		writeJSON(w, status, report)
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
