package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Tyrowin/jobchat/internal/auth"
	"github.com/Tyrowin/jobchat/internal/store"
)

type createInvitationRequest struct {
	JobID              int64  `json:"jobId" validate:"required,gt=0"`
	CandidateProfileID int64  `json:"candidateProfileId" validate:"required,gt=0"`
	Message            string `json:"message" validate:"max=2000"`
}

// handleCreateInvitation stores the invitation and starts the socket
// notification in the background. The response never waits for delivery.
func (a *API) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	if !strings.EqualFold(id.Role, RoleRecruiter) {
		respondError(w, http.StatusForbidden, errors.New("only recruiters can send invitations"))
		return
	}

	var req createInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationError(err))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	inv, err := a.invitations.CreateInvitation(ctx, store.Invitation{
		JobID:              req.JobID,
		CandidateProfileID: req.CandidateProfileID,
		InvitedByUserID:    id.ID,
		Message:            strings.TrimSpace(req.Message),
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, errors.New("job or candidate not found"))
		return
	case err != nil:
		a.log.Error().Err(err).Int64("user_id", id.ID).Msg("Failed to create invitation")
		respondError(w, http.StatusInternalServerError, errors.New("could not create invitation"))
		return
	}

	a.notifyAsync(inv.ID)
	respondJSON(w, http.StatusCreated, map[string]any{"invitation": inv})
}

func (a *API) notifyAsync(invitationID int64) {
	if a.notifier == nil {
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		delivered := a.notifier.NotifyInvitation(context.Background(), invitationID)
		a.log.Debug().Int64("invitation_id", invitationID).Bool("delivered", delivered).Msg("Invitation notification dispatched")
	}()
}
