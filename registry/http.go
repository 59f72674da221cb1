package registry

import (
	"net/http"

	"github.com/segmentio/encoding/json"
)

// ServeHTTP implements http.Handler, serving the registry state as a JSON
// array of metrics. A name query parameter restricts the response to the
// statistics with that exact name.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	metrics := r.State()
	if name := req.URL.Query().Get("name"); name != "" {
		filtered := metrics[:0]
		for _, m := range metrics {
			if m.Name == name {
				filtered = append(filtered, m)
			}
		}
		metrics = filtered
	}
	if metrics == nil {
		metrics = []Metric{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(metrics)
}
