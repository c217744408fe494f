package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/application/dispatch"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/validate"
)

// BroadcastHandler exposes article broadcasts and the failed-queue sweep.
type BroadcastHandler struct {
	svc dispatch.Service
}

func NewBroadcastHandler(svc dispatch.Service) *BroadcastHandler {
	return &BroadcastHandler{svc: svc}
}

func (h *BroadcastHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var body domain.BroadcastArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	article := &domain.Article{
		ArticleID:   body.ArticleID,
		Title:       body.Title,
		URL:         body.URL,
		Category:    body.Category,
		Summary:     body.Summary,
		PublishedAt: time.Now().UTC(),
	}
	report, err := h.svc.BroadcastArticle(r.Context(), article)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *BroadcastHandler) ProcessFailed(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.ProcessFailedNotifications(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
