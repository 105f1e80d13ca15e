package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/go-chi/chi/v5"
)

// maxTopK caps client-supplied k on retrieval.
const maxTopK = 50

type PassageSearcher interface {
	Search(ctx context.Context, documentID, query string, k int) ([]domain.ScoredPassage, error)
}

type ChatService interface {
	Reply(ctx context.Context, documentID string, history []domain.ChatMessage, message string) (string, error)
}

type ChatHandler struct {
	search PassageSearcher
	chat   ChatService
}

func NewChatHandler(search PassageSearcher, chat ChatService) *ChatHandler {
	return &ChatHandler{search: search, chat: chat}
}

type RetrieveRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type PassageResponse struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type RetrieveResponse struct {
	Context  string            `json:"context"`
	Passages []PassageResponse `json:"passages"`
}

type ChatMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string               `json:"message"`
	History []ChatMessageRequest `json:"history,omitempty"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

func (h *ChatHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req RetrieveRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.BadBody(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K < 0 || req.K > maxTopK {
		api.Error(w, http.StatusBadRequest, "k must be between 0 and 50")
		return
	}

	passages, err := h.search.Search(r.Context(), id, req.Query, req.K)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := RetrieveResponse{
		Context:  service.JoinPassages(passages),
		Passages: make([]PassageResponse, len(passages)),
	}
	for i, p := range passages {
		resp.Passages[i] = PassageResponse{Text: p.Text, Score: p.Score}
	}

	api.Success(w, http.StatusOK, resp)
}

// Chat answers one message. Unusable documents produce a sentinel reply with
// status 200, so clients always render the reply text.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ChatRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.BadBody(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	history := make([]domain.ChatMessage, 0, len(req.History))
	for _, m := range req.History {
		role := domain.ChatRole(m.Role)
		if role != domain.ChatRoleUser && role != domain.ChatRoleAssistant {
			api.Error(w, http.StatusBadRequest, "history role must be user or assistant")
			return
		}
		history = append(history, domain.ChatMessage{Role: role, Content: m.Content})
	}

	reply, err := h.chat.Reply(r.Context(), id, history, req.Message)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ChatResponse{Reply: reply})
}
