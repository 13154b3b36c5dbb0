package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"gwi.com/conversation-assistant/internal/auth"
	"gwi.com/conversation-assistant/internal/core"
	"gwi.com/conversation-assistant/internal/store"
)

const (
	detailNotAuthenticated   = "Not authenticated"
	detailInvalidCredentials = "Could not validate credentials"
	detailInvalidBody        = "Invalid request body"
	detailInvalidID          = "Invalid conversation id"
	detailInvalidPaging      = "skip and limit must be integers"

	deletedMessage = "Conversation deleted successfully"
)

type APIHandler struct {
	chat   *core.ChatService
	users  *core.UserService
	tokens *auth.TokenManager
	log    zerolog.Logger
}

func NewAPIHandler(chat *core.ChatService, users *core.UserService, tokens *auth.TokenManager, log zerolog.Logger) *APIHandler {
	return &APIHandler{
		chat:   chat,
		users:  users,
		tokens: tokens,
		log:    log.With().Str("component", "api").Logger(),
	}
}

type ctxKey int

const userKey ctxKey = iota

func currentUser(ctx context.Context) *store.User {
	user, _ := ctx.Value(userKey).(*store.User)
	return user
}

// JWTAuthMiddleware resolves the bearer token into an active user.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, detailNotAuthenticated)
			return
		}

		userID, err := h.tokens.ValidateJWT(tokenString)
		if err != nil {
			h.log.Debug().Err(err).Msg("rejected access token")
			writeDetail(w, http.StatusForbidden, detailInvalidCredentials)
			return
		}

		user, err := h.users.UserByID(r.Context(), userID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if !user.IsActive {
			writeDetail(w, http.StatusBadRequest, core.DetailInactiveUser)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, detailInvalidBody)
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// LoginHandler takes OAuth2 password-flow form fields: username and password.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, detailInvalidBody)
		return
	}

	user, err := h.users.Authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.tokens.GenerateJWT(user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to sign access token")
		writeDetail(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r.Context()))
}

type ChatRequest struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type NewChatResponse struct {
	ConversationID int64   `json:"conversation_id"`
	Content        string  `json:"content"`
	Summary        *string `json:"summary"`
	QuestionID     int64   `json:"question_id"`
	AnswerID       int64   `json:"answer_id"`
}

type ContinueChatResponse struct {
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
	QuestionID     int64  `json:"question_id"`
	AnswerID       int64  `json:"answer_id"`
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (core.MessageIn, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, detailInvalidBody)
		return core.MessageIn{}, false
	}
	if req.Role == "" {
		req.Role = string(store.RoleUser)
	}
	return core.MessageIn{Content: req.Content, Role: req.Role}, true
}

func (h *APIHandler) NewChatHandler(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	reply, err := h.chat.NewConversation(r.Context(), currentUser(r.Context()), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewChatResponse{
		ConversationID: reply.ConversationID,
		Content:        reply.Content,
		Summary:        reply.Summary,
		QuestionID:     reply.QuestionID,
		AnswerID:       reply.AnswerID,
	})
}

func (h *APIHandler) ContinueChatHandler(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := pathID(w, r, "conversation_id")
	if !ok {
		return
	}
	in, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	reply, err := h.chat.ContinueConversation(r.Context(), currentUser(r.Context()), conversationID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContinueChatResponse{
		ConversationID: reply.ConversationID,
		Content:        reply.Content,
		QuestionID:     reply.QuestionID,
		AnswerID:       reply.AnswerID,
	})
}

type ConversationsResponse struct {
	Data  []store.Conversation `json:"data"`
	Count int                  `json:"count"`
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, detailInvalidPaging)
		return
	}
	limit, err := queryInt(r, "limit", core.DefaultPageLimit)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, detailInvalidPaging)
		return
	}

	conversations, count, err := h.chat.ListConversations(r.Context(), currentUser(r.Context()), skip, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, ConversationsResponse{Data: conversations, Count: count})
}

type ConversationDetailResponse struct {
	store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.chat.GetConversation(r.Context(), currentUser(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	messages := conv.Messages
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, ConversationDetailResponse{Conversation: *conv, Messages: messages})
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.chat.DeleteConversation(r.Context(), currentUser(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: deletedMessage})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, detailInvalidID)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *core.Error
	if !errors.As(err, &e) {
		e = &core.Error{Kind: core.KindInternal, Detail: "Internal server error", Err: err}
	}

	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("kind", e.Kind.String()).Msg("request failed")
	}
	writeDetail(w, status, e.Detail)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
