package server

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// InvitationNotice is published after every invitation notification attempt.
type InvitationNotice struct {
	InvitationID int64  `json:"invitationId"`
	UserID       int64  `json:"userId,omitempty"`
	Outcome      string `json:"outcome"`
}

// NotifyInvitation loads an invitation with its job, company and candidate
// profile and pushes a new_invitation event to the candidate's live sockets.
// It returns false when any record is missing, when storage fails, or when
// the candidate has no live socket. Errors are logged and never returned.
func (h *Hub) NotifyInvitation(ctx context.Context, invitationID int64) bool {
	ctx, span := tracer.Start(ctx, "server.NotifyInvitation")
	defer span.End()
	span.SetAttributes(attribute.Int64("jobchat.invitation_id", invitationID))

	payload, userID, err := h.loadInvitation(ctx, invitationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load invitation")
		h.log.Warn().Err(err).Int64("invitation_id", invitationID).Msg("Invitation notification aborted")
		h.finishNotification(ctx, InvitationNotice{InvitationID: invitationID, Outcome: outcomeAborted})
		return false
	}

	delivered := h.Notify(userID, InvitationEvent{Invitation: payload})
	outcome := outcomeDelivered
	if !delivered {
		outcome = outcomeOffline
	}
	span.SetAttributes(attribute.String("jobchat.outcome", outcome))
	h.log.Debug().
		Int64("invitation_id", invitationID).
		Int64("user_id", userID).
		Str("outcome", outcome).
		Msg("Invitation notification finished")

	h.finishNotification(ctx, InvitationNotice{InvitationID: invitationID, UserID: userID, Outcome: outcome})
	return delivered
}

func (h *Hub) loadInvitation(ctx context.Context, invitationID int64) (InvitationPayload, int64, error) {
	if h.invitations == nil {
		return InvitationPayload{}, 0, ErrStorageFailure
	}
	inv, err := h.invitations.GetInvitation(ctx, invitationID)
	if err != nil {
		return InvitationPayload{}, 0, err
	}
	job, err := h.invitations.GetJob(ctx, inv.JobID)
	if err != nil {
		return InvitationPayload{}, 0, err
	}
	company, err := h.invitations.GetCompany(ctx, job.CompanyID)
	if err != nil {
		return InvitationPayload{}, 0, err
	}
	profile, err := h.invitations.GetCandidateProfile(ctx, inv.CandidateProfileID)
	if err != nil {
		return InvitationPayload{}, 0, err
	}

	return InvitationPayload{
		Invitation: inv,
		Job:        JobPayload{Job: job, Company: company},
	}, profile.UserID, nil
}

func (h *Hub) finishNotification(ctx context.Context, notice InvitationNotice) {
	h.metrics.notifications.WithLabelValues(notice.Outcome).Inc()
	h.publish(ctx, SubjectInvitationNotified, notice)
}
