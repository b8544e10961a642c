package handler

import "net/http"

// ConsumerStatus is the read side of worker.Status.
type ConsumerStatus interface {
	Running() bool
}

type healthResponse struct {
	Status          string `json:"status"`
	ConsumerRunning bool   `json:"consumer_running"`
}

// HealthHandler serves the liveness probe. The process answers healthy as
// long as it can serve HTTP; consumer_running tells whether messages are
// being taken off the queue.
type HealthHandler struct {
	status ConsumerStatus
}

func NewHealthHandler(status ConsumerStatus) *HealthHandler {
	return &HealthHandler{status: status}
}

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  healthResponse
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:          "healthy",
		ConsumerRunning: h.status != nil && h.status.Running(),
	})
}
