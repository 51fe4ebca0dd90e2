package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"trendpulse/internal/domain/trend"
	"trendpulse/internal/service/cluster"
)

// IngestHandler handles mention submissions from source adapters.
type IngestHandler struct {
	ingestor trend.Ingestor
	deduper  *cluster.Deduper
	marker   CorroborateMarker
	validate *validator.Validate
	logger   *slog.Logger
}

// CorroborateMarker downgrades a topic's latest observation to
// corroborating evidence when its article body is a near-duplicate.
type CorroborateMarker interface {
	MarkCorroborateOnly(topicKey string)
}

// mentionRequest is the push payload accepted from source adapters.
type mentionRequest struct {
	TopicKey    string    `json:"topic_key"`
	EntityType  string    `json:"entity_type"`
	SourceID    string    `json:"source_id" validate:"required"`
	SourceTier  int       `json:"source_tier" validate:"required,min=1,max=3"`
	ObservedAt  time.Time `json:"observed_at"`
	DedupKey    string    `json:"dedup_key" validate:"required"`
	RawTextRef  string    `json:"raw_text_ref"`
	ArticleBody string    `json:"article_body"`
}

// mentionResponse reports the submission outcome, including the article
// duplicate flag when a body was checked.
type mentionResponse struct {
	Status  trend.SubmitResult `json:"status"`
	Article *cluster.DupResult `json:"article,omitempty"`
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(ingestor trend.Ingestor, deduper *cluster.Deduper, marker CorroborateMarker, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		deduper:  deduper,
		marker:   marker,
		validate: validator.New(),
		logger:   logger,
	}
}

// SubmitMention accepts one normalized mention record.
func (h *IngestHandler) SubmitMention(w http.ResponseWriter, r *http.Request) {
	var req mentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid mention: "+err.Error())
		return
	}
	if req.TopicKey == "" && req.EntityType == "" {
		respondWithError(w, http.StatusBadRequest, "Either topic_key or entity_type is required")
		return
	}

	topicKey := req.TopicKey
	if topicKey == "" {
		topicKey = req.EntityType
	}

	m := trend.Mention{
		TopicKey:   topicKey,
		EntityType: req.EntityType,
		SourceID:   req.SourceID,
		SourceTier: trend.SourceTier(req.SourceTier),
		ObservedAt: req.ObservedAt,
		RawTextRef: req.RawTextRef,
		DedupKey:   req.DedupKey,
	}

	result, err := h.ingestor.Submit(r.Context(), m)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Mention rejected: "+err.Error())
		return
	}

	resp := mentionResponse{Status: result}

	// Article-level duplicate detection is separate from mention dedup:
	// the copy is retained, flagged, and excluded from trend evidence.
	if result == trend.SubmitAccepted && req.ArticleBody != "" && req.RawTextRef != "" {
		dup := h.deduper.Check(req.RawTextRef, req.ArticleBody)
		if dup.IsDuplicate {
			h.marker.MarkCorroborateOnly(topicKey)
			h.logger.Debug("near-duplicate article",
				"ref", req.RawTextRef, "original", dup.OriginalRef)
		}
		resp.Article = &dup
	}

	code := http.StatusAccepted
	if result == trend.SubmitDuplicate {
		code = http.StatusOK
	}
	respondWithJSON(w, code, resp)
}
