package api

import (
	"errors"
	"net/http"

	"github.com/samber/lo"

	"github.com/Tyrowin/jobchat/internal/auth"
	"github.com/Tyrowin/jobchat/internal/store"
)

func (a *API) handleSocketToken(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	token, err := a.tokens.IssueSocketToken(id)
	if err != nil {
		a.log.Error().Err(err).Int64("user_id", id.ID).Msg("Failed to issue socket token")
		respondError(w, http.StatusInternalServerError, errors.New("could not issue token"))
		return
	}
	respondJSON(w, http.StatusCreated, token)
}

// handleConversation returns the rows as stored, then flags the returned ones
// sent to the caller as read, so the response still shows which ones were new.
// Messages outside the page stay unread.
func (a *API) handleConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	otherID, err := pathID(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	before, err := queryInt(r, "before")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	messages, err := a.messages.ListConversation(ctx, store.ConversationQuery{
		UserID:   id.ID,
		OtherID:  otherID,
		Limit:    int(limit),
		BeforeID: before,
	})
	if err != nil {
		a.log.Error().Err(err).Int64("user_id", id.ID).Msg("Failed to list conversation")
		respondError(w, http.StatusInternalServerError, errors.New("could not load conversation"))
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}

	incoming := lo.FilterMap(messages, func(m store.Message, _ int) (int64, bool) {
		return m.ID, m.ReceiverID == id.ID && !m.Read
	})
	if _, err := a.messages.MarkMessagesRead(ctx, id.ID, incoming); err != nil {
		a.log.Warn().Err(err).Int64("user_id", id.ID).Int64("other_id", otherID).Msg("Failed to mark conversation read")
	}

	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (a *API) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	count, err := a.messages.CountUnread(ctx, id.ID)
	if err != nil {
		a.log.Error().Err(err).Int64("user_id", id.ID).Msg("Failed to count unread messages")
		respondError(w, http.StatusInternalServerError, errors.New("could not count messages"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	messageID, err := pathID(r, "messageID")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	msg, err := a.messages.MarkMessageAsRead(ctx, messageID, id.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, errors.New("message not found"))
		return
	case err != nil:
		a.log.Error().Err(err).Int64("message_id", messageID).Msg("Failed to mark message read")
		respondError(w, http.StatusInternalServerError, errors.New("could not update message"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": msg})
}
