package httpapi

import (
	"net/http"
	"time"

	"airsense/internal/controller"
)

// StatusProvider is satisfied by *controller.Controller.
type StatusProvider interface {
	Status() controller.Status
}

type healthResponse struct {
	Status     string     `json:"status"`
	State      string     `json:"state"`
	Connected  bool       `json:"connected"`
	Samples    uint64     `json:"samples"`
	Published  uint64     `json:"published"`
	Discarded  uint64     `json:"discarded"`
	Failures   uint64     `json:"failures"`
	Reattaches uint64     `json:"reattaches"`
	LastSample *time.Time `json:"last_sample"`
}

type healthHandler struct {
	provider StatusProvider
	// stale is how long without a sample before the node reports degraded.
	stale    time.Duration
	now      func() time.Time
}

func (h *healthHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := h.provider.Status()

	resp := healthResponse{
		Status:     "ok",
		State:      st.State.String(),
		Connected:  st.Connected,
		Samples:    st.Samples,
		Published:  st.Published,
		Discarded:  st.Discarded,
		Failures:   st.Failures,
		Reattaches: st.Reattaches,
	}
	if !st.LastSample.IsZero() {
		last := st.LastSample.UTC()
		resp.LastSample = &last
		if h.stale > 0 && h.now().Sub(st.LastSample) > h.stale {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func registerHealthcheck(mux *http.ServeMux, h *healthHandler) {
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
