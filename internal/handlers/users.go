package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/messagely/apiserver/internal/services"
)

const paramUsername = "username"

// UserHandler serves user and message directory endpoints.
type UserHandler struct {
	userService    *services.UserService
	messageService *services.MessageService
}

// NewUserHandler constructs a handler with the provided services.
func NewUserHandler(userService *services.UserService, messageService *services.MessageService) *UserHandler {
	return &UserHandler{
		userService:    userService,
		messageService: messageService,
	}
}

// UserRouter registers user routes on the given router. Every route requires
// authentication; message listings are restricted to their owner.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	messageService *services.MessageService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, messageService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListUsers)
	r.Route("/{username}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.With(requireSameUser).Get("/from", handler.MessagesFrom)
		r.With(requireSameUser).Get("/to", handler.MessagesTo)
	})
}

// ListUsers returns a summary of every user.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.All(r.Context())
	if err != nil {
		writeStoreError(w, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns the public record of a single user.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), chi.URLParam(r, paramUsername))
	if err != nil {
		writeStoreError(w, err, "failed to load user")
		return
	}
	user.PasswordHash = ""
	writeJSON(w, http.StatusOK, user)
}

// MessagesFrom lists messages sent by the user.
func (h *UserHandler) MessagesFrom(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messageService.From(r.Context(), chi.URLParam(r, paramUsername))
	if err != nil {
		writeStoreError(w, err, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// MessagesTo lists messages received by the user.
func (h *UserHandler) MessagesTo(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messageService.To(r.Context(), chi.URLParam(r, paramUsername))
	if err != nil {
		writeStoreError(w, err, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func requireSameUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := usernameFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if subject != chi.URLParam(r, paramUsername) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
