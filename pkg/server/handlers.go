package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nstogner/glow/pkg/auth"
	"github.com/nstogner/glow/pkg/chat"
	"github.com/nstogner/glow/pkg/conversation"
	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/tools"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	return nil
}

// --- Chat ---

type chatRequest struct {
	ConversationID string           `json:"conversationId"`
	Messages       []domain.Message `json:"messages"`
}

type chatResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
	Message      *domain.Message      `json:"message"`
	Content      string               `json:"content"`
	HTML         string               `json:"html"`
	StatusLabel  string               `json:"statusLabel"`
}

func newChatResponse(out *conversation.TurnOutput) chatResponse {
	return chatResponse{
		Conversation: out.Conversation,
		Message:      out.Message,
		Content:      out.Message.Content,
		HTML:         chat.FormatRoutine(out.Message.Content),
		StatusLabel:  chat.ToolDisplayName(*out.Message),
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	out, err := s.Conversations.Turn(r.Context(), id, conversation.TurnInput{
		ConversationID: req.ConversationID,
		Messages:       req.Messages,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newChatResponse(out))
}

// --- Conversations ---

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	convs, err := s.Conversations.List(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, convs)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	conv, err := s.Conversations.Get(r.Context(), id, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := s.Conversations.Delete(r.Context(), id, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBackfillMetadata(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var metadata map[string]any
	if err := decodeJSON(w, r, &metadata); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	msg, err := s.Conversations.BackfillMetadata(r.Context(), id, r.PathValue("id"), r.PathValue("messageID"), metadata)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, msg)
}

// --- Quiz ---

type quizRequest struct {
	Email    string                  `json:"email"`
	Name     string                  `json:"name"`
	Age      int                     `json:"age"`
	Gender   string                  `json:"gender"`
	Budget   string                  `json:"budget"`
	Concerns []string                `json:"concerns"`
	Answers  tools.SkinQuestionnaire `json:"answers"`
}

type quizResponse struct {
	User     *domain.User           `json:"user"`
	SkinType *domain.SkinTypeOutput `json:"skinType"`
	Products []domain.Product       `json:"products"`
}

// handleQuiz classifies the quiz answers, saves the profile and recommends
// products through the same tools the agent uses.
func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if id := s.optionalIdentity(r); id != nil {
		req.Email = id.Email
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("email is required"))
		return
	}

	answers, err := toInput(req.Answers)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	part, _ := s.Tools.Invoke(r.Context(), domain.ToolCall{
		ID:    "quiz-" + uuid.New().String(),
		Name:  domain.ToolDetectSkinTypeFromQuestions,
		Input: answers,
	})
	skin, ok := part.Output.(*domain.SkinTypeOutput)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("invalid answers: %s", part.ErrorText))
		return
	}

	user := &domain.User{
		Email:    req.Email,
		Name:     req.Name,
		SkinType: skin.SkinType,
		Concerns: req.Concerns,
		Budget:   req.Budget,
		Gender:   req.Gender,
		Age:      req.Age,
	}
	if err := s.Store.UpsertUser(r.Context(), user); err != nil {
		s.fail(w, err)
		return
	}

	search := map[string]any{"skinType": skin.SkinType}
	if len(req.Concerns) > 0 {
		search["concerns"] = req.Concerns
	}
	if req.Budget != "" {
		search["budget"] = req.Budget
	}
	if req.Gender != "" {
		search["gender"] = req.Gender
	}
	resp := quizResponse{User: user, SkinType: skin, Products: []domain.Product{}}
	part, _ = s.Tools.Invoke(r.Context(), domain.ToolCall{
		ID:    "quiz-" + uuid.New().String(),
		Name:  domain.ToolFindBestProducts,
		Input: search,
	})
	if products, ok := part.Output.(*domain.ProductsOutput); ok {
		resp.Products = products.Products
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// toInput converts a typed tool input into the map form tools accept.
func toInput(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// --- Products ---

func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		SkinType: q.Get("skinType"),
		Budget:   q.Get("budget"),
		Gender:   q.Get("gender"),
		Category: q.Get("category"),
		Limit:    tools.MaxProducts,
	}
	for _, c := range strings.Split(q.Get("concerns"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			filter.Concerns = append(filter.Concerns, c)
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and 100"))
			return
		}
		filter.Limit = n
	}

	products, err := s.Store.FindProducts(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	s.jsonResponse(w, http.StatusOK, products)
}
