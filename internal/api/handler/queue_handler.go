package handler

import (
	"net/http"

	"github.com/ricirt/task-insights/internal/worker"
)

// QueueSampler is the part of worker.QueueSampler the handler reads.
type QueueSampler interface {
	Sample() error
	Last() (worker.QueueSnapshot, bool)
}

type queueResponse struct {
	ConsumerState string                `json:"consumer_state"`
	Queue         *worker.QueueSnapshot `json:"queue"`
}

// QueueHandler serves a JSON view of the task queue.
// Raw Prometheus metrics are available at /metrics via promhttp.Handler.
type QueueHandler struct {
	sampler QueueSampler
	status  *worker.Status
}

func NewQueueHandler(sampler QueueSampler, status *worker.Status) *QueueHandler {
	return &QueueHandler{sampler: sampler, status: status}
}

// GetQueue handles GET /api/v1/queue
//
// Returns the last scheduled sample. With ?refresh=true the queue is
// inspected first; that fails with 503 while the consumer is not running.
//
// @Summary  Task queue depth and consumer state
// @Tags     metrics
// @Produce  json
// @Param    refresh  query  bool  false  "sample now"
// @Success  200  {object}  queueResponse
// @Failure  503  {object}  map[string]string
// @Router   /api/v1/queue [get]
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.sampler.Sample(); err != nil {
			mapError(w, err)
			return
		}
	}

	resp := queueResponse{ConsumerState: h.status.State().String()}
	if snap, ok := h.sampler.Last(); ok {
		resp.Queue = &snap
	}
	respondJSON(w, http.StatusOK, resp)
}
