// Package api serves the HTTP endpoints that sit next to the socket layer:
// socket token issuance, conversation history, unread counts, read receipts
// and invitation creation.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/jobchat/internal/auth"
	"github.com/Tyrowin/jobchat/internal/store"
)

// RoleRecruiter may create invitations.
const RoleRecruiter = "recruiter"

// MessageStore is the read path over persisted messages.
type MessageStore interface {
	ListConversation(ctx context.Context, q store.ConversationQuery) ([]store.Message, error)
	MarkMessagesRead(ctx context.Context, readerID int64, ids []int64) (int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkMessageAsRead(ctx context.Context, id, readerID int64) (store.Message, error)
}

// InvitationStore creates invitations.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv store.Invitation) (store.Invitation, error)
}

// TokenService issues and verifies tokens.
type TokenService interface {
	auth.Verifier
	IssueSocketToken(id auth.Identity) (auth.Token, error)
}

// Notifier pushes invitation events to live sockets.
type Notifier interface {
	NotifyInvitation(ctx context.Context, invitationID int64) bool
}

// Options configures an API.
type Options struct {
	Messages       MessageStore
	Invitations    InvitationStore
	Tokens         TokenService
	Notifier       Notifier
	Logger         zerolog.Logger
	AllowedOrigins []string
	// RequestsPerMinute caps requests per client IP; zero uses 100.
	RequestsPerMinute int
}

// API holds the dependencies of the HTTP handlers.
type API struct {
	messages    MessageStore
	invitations InvitationStore
	tokens      TokenService
	notifier    Notifier
	log         zerolog.Logger
	validate    *validator.Validate
	origins     []string
	rpm         int

	// background tracks notifications fired after a response was written.
	background sync.WaitGroup
}

// New creates an API.
func New(opts Options) *API {
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 100
	}
	return &API{
		messages:    opts.Messages,
		invitations: opts.Invitations,
		tokens:      opts.Tokens,
		notifier:    opts.Notifier,
		log:         opts.Logger.With().Str("component", "api").Logger(),
		validate:    validator.New(),
		origins:     opts.AllowedOrigins,
		rpm:         rpm,
	}
}

// Router builds the /api sub-router. Every route requires a bearer token.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	allowed := a.origins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	r.Use(httprate.LimitByIP(a.rpm, time.Minute))
	r.Use(auth.Middleware(a.tokens))

	r.Post("/auth/socket-token", a.handleSocketToken)

	r.Route("/messages", func(r chi.Router) {
		r.Get("/conversation/{userID}", a.handleConversation)
		r.Get("/unread-count", a.handleUnreadCount)
		r.Patch("/{messageID}/read", a.handleMarkRead)
	})

	r.Post("/invitations", a.handleCreateInvitation)

	return r
}

// Wait blocks until notifications started by earlier requests have finished.
func (a *API) Wait() {
	a.background.Wait()
}
