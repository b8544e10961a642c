package handler

import "net/http"

const (
	FeatureSentimentAnalysis  = "sentiment_analysis"
	FeatureTaskCategorization = "task_categorization"
)

type rootResponse struct {
	Message  string   `json:"message"`
	Status   string   `json:"status"`
	Features []string `json:"features"`
}

type RootHandler struct{}

func NewRootHandler() *RootHandler { return &RootHandler{} }

// Root handles GET /
//
// @Summary  Service banner
// @Tags     system
// @Produce  json
// @Success  200  {object}  rootResponse
// @Router   / [get]
func (h *RootHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, rootResponse{
		Message:  "Task analysis worker is running!",
		Status:   "healthy",
		Features: []string{FeatureSentimentAnalysis, FeatureTaskCategorization},
	})
}
