package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"atlas-rag/internal/domain"
	"atlas-rag/internal/usecase"
)

// Handler exposes the retrieval pipeline over HTTP. All logic lives in the
// usecases; this layer only binds, validates and serializes.
type Handler struct {
	retrieveUsecase usecase.RetrieveContextUsecase
	answerUsecase   usecase.AnswerUsecase
	indexUsecase    usecase.IndexDocumentUsecase
	ready           func(echo.Context) error
	logger          *slog.Logger
}

func NewHandler(
	retrieveUsecase usecase.RetrieveContextUsecase,
	answerUsecase usecase.AnswerUsecase,
	indexUsecase usecase.IndexDocumentUsecase,
	ready func(echo.Context) error,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		retrieveUsecase: retrieveUsecase,
		answerUsecase:   answerUsecase,
		indexUsecase:    indexUsecase,
		ready:           ready,
		logger:          logger,
	}
}

// Register attaches all routes to the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)

	v1 := e.Group("/v1")
	v1.POST("/chat/stream", h.ChatStream)
	v1.POST("/retrieve", h.Retrieve)
	v1.POST("/documents", h.IndexDocument)
	v1.DELETE("/documents/:id", h.DeleteDocument)
}

func (h *Handler) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Ready(ctx echo.Context) error {
	if h.ready != nil {
		if err := h.ready(ctx); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

type retrieveRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k"`
	DocumentIDs []string `json:"document_ids"`
}

type contextResponse struct {
	DocumentID string  `json:"document_id"`
	Index      int     `json:"index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Indices    []int   `json:"indices"`
}

type retrieveResponse struct {
	Contexts   []contextResponse `json:"contexts"`
	SubQueries []string          `json:"sub_queries"`
}

func (h *Handler) Retrieve(ctx echo.Context) error {
	var req retrieveRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Query == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	out, err := h.retrieveUsecase.Execute(ctx.Request().Context(), usecase.RetrieveContextInput{
		Query:       req.Query,
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	contexts := make([]contextResponse, 0, len(out.Contexts))
	for _, c := range out.Contexts {
		contexts = append(contexts, contextResponse{
			DocumentID: c.Anchor.DocumentID,
			Index:      c.Anchor.Index,
			Content:    c.Content,
			Score:      c.Score,
			Indices:    c.Indices,
		})
	}
	return ctx.JSON(http.StatusOK, retrieveResponse{
		Contexts:   contexts,
		SubQueries: out.SubQueries,
	})
}

type chatRequest struct {
	Query       string           `json:"query"`
	History     []domain.Message `json:"history"`
	DocumentIDs []string         `json:"document_ids"`
}

type referenceResponse struct {
	DocumentID   string  `json:"document_id"`
	PassageIndex int     `json:"passage_index"`
	Filename     string  `json:"filename,omitempty"`
	Score        float64 `json:"score"`
}

// ChatStream answers a chat turn over SSE. Frames carry JSON payloads keyed
// by event kind; the terminal frame lists the passages that grounded the
// answer.
func (h *Handler) ChatStream(ctx echo.Context) error {
	var req chatRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Query == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	events := h.answerUsecase.Stream(ctx.Request().Context(), usecase.AnswerInput{
		Query:       req.Query,
		History:     req.History,
		DocumentIDs: req.DocumentIDs,
	})

	for ev := range events {
		frame, err := streamFrame(ev)
		if err != nil {
			h.logger.Warn("stream_frame_encoding_failed", slog.String("error", err.Error()))
			continue
		}
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", frame); err != nil {
			return nil // client went away
		}
		resp.Flush()
	}

	fmt.Fprint(resp, "data: [DONE]\n\n")
	resp.Flush()
	return nil
}

// streamFrame serializes one stream event into its SSE payload.
func streamFrame(ev usecase.StreamEvent) ([]byte, error) {
	switch ev.Kind {
	case usecase.StreamEventKindDelta:
		return json.Marshal(map[string]interface{}{"content": ev.Payload})
	case usecase.StreamEventKindThinking:
		return json.Marshal(map[string]interface{}{"reasoning": ev.Payload})
	case usecase.StreamEventKindMeta:
		meta := ev.Payload.(usecase.StreamMeta)
		return json.Marshal(map[string]interface{}{
			"meta": map[string]interface{}{
				"context_count": len(meta.Contexts),
				"sub_queries":   meta.SubQueries,
			},
		})
	case usecase.StreamEventKindDone:
		done := ev.Payload.(usecase.StreamDone)
		refs := make([]referenceResponse, 0, len(done.References))
		for _, r := range done.References {
			refs = append(refs, referenceResponse{
				DocumentID:   r.DocumentID,
				PassageIndex: r.PassageIndex,
				Filename:     r.Filename,
				Score:        r.Score,
			})
		}
		return json.Marshal(map[string]interface{}{"references": refs})
	case usecase.StreamEventKindError:
		return json.Marshal(map[string]interface{}{"error": ev.Payload})
	default:
		return nil, fmt.Errorf("unknown stream event kind %q", ev.Kind)
	}
}

type indexDocumentRequest struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Text       string `json:"text"`
	Summary    string `json:"summary"`
}

func (h *Handler) IndexDocument(ctx echo.Context) error {
	var req indexDocumentRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Text == "" && req.Summary == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.New().String()
	}

	out, err := h.indexUsecase.Execute(ctx.Request().Context(), usecase.IndexDocumentInput{
		DocumentID: req.DocumentID,
		Filename:   req.Filename,
		Text:       req.Text,
		Summary:    req.Summary,
	})
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusCreated, map[string]interface{}{
		"document_id":   req.DocumentID,
		"passage_count": out.PassageCount,
	})
}

func (h *Handler) DeleteDocument(ctx echo.Context) error {
	documentID := ctx.Param("id")
	if documentID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "document id is required"})
	}

	deleted, err := h.indexUsecase.Delete(ctx.Request().Context(), documentID)
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"document_id": documentID,
		"deleted":     deleted,
	})
}
