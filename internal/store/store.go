package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 200
)

// Store implements the message store and the read-only job-board lookups.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps an open GORM handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock returns a copy of s that stamps new rows using now.
func (s *Store) WithClock(now func() time.Time) *Store {
	return &Store{db: s.db, now: now}
}

// CreateMessage persists a new unread message and returns the stored row.
func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (Message, error) {
	msg := Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Read:       false,
		// database timestamps keep microseconds; truncate so the pushed copy
		// matches what a later fetch returns
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// GetMessage returns the message with the given id.
func (s *Store) GetMessage(ctx context.Context, id int64) (Message, error) {
	var msg Message
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return Message{}, wrapLookup("message", id, err)
	}
	return msg, nil
}

// MarkMessageAsRead flags a message as read on behalf of its receiver.
// Messages addressed to someone else are reported as not found.
func (s *Store) MarkMessageAsRead(ctx context.Context, id, readerID int64) (Message, error) {
	var msg Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND receiver_id = ?", id, readerID).First(&msg).Error; err != nil {
			return wrapLookup("message", id, err)
		}
		if msg.Read {
			return nil
		}
		if err := tx.Model(&Message{}).Where("id = ?", id).Update("read", true).Error; err != nil {
			return fmt.Errorf("mark message %d read: %w", id, err)
		}
		msg.Read = true
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ConversationQuery selects a page of messages between two users.
type ConversationQuery struct {
	UserID   int64
	OtherID  int64
	Limit    int
	BeforeID int64
}

// ListConversation returns messages exchanged between two users, oldest first.
// When BeforeID is set only older messages are returned, for pagination.
func (s *Store) ListConversation(ctx context.Context, q ConversationQuery) ([]Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	if limit > maxConversationLimit {
		limit = maxConversationLimit
	}

	query := s.db.WithContext(ctx).Model(&Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			q.UserID, q.OtherID, q.OtherID, q.UserID)
	if q.BeforeID > 0 {
		query = query.Where("id < ?", q.BeforeID)
	}

	var newestFirst []Message
	if err := query.Order("id DESC").Limit(limit).Find(&newestFirst).Error; err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}

	out := make([]Message, len(newestFirst))
	for i, msg := range newestFirst {
		out[len(newestFirst)-1-i] = msg
	}
	return out, nil
}

// MarkMessagesRead flags the given messages as read when readerID is their
// receiver. Other rows, including later messages in the same conversation,
// are left alone.
func (s *Store) MarkMessagesRead(ctx context.Context, readerID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&Message{}).
		Where("id IN ? AND receiver_id = ? AND read = ?", ids, readerID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark messages read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountUnread returns how many messages addressed to userID are still unread.
func (s *Store) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Message{}).
		Where("receiver_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// GetInvitation returns the invitation with the given id.
func (s *Store) GetInvitation(ctx context.Context, id int64) (Invitation, error) {
	var inv Invitation
	if err := s.db.WithContext(ctx).First(&inv, id).Error; err != nil {
		return Invitation{}, wrapLookup("invitation", id, err)
	}
	return inv, nil
}

// GetJob returns the job with the given id.
func (s *Store) GetJob(ctx context.Context, id int64) (Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return Job{}, wrapLookup("job", id, err)
	}
	return job, nil
}

// GetCompany returns the company with the given id.
func (s *Store) GetCompany(ctx context.Context, id int64) (Company, error) {
	var company Company
	if err := s.db.WithContext(ctx).First(&company, id).Error; err != nil {
		return Company{}, wrapLookup("company", id, err)
	}
	return company, nil
}

// GetCandidateProfile returns the candidate profile with the given id.
func (s *Store) GetCandidateProfile(ctx context.Context, id int64) (CandidateProfile, error) {
	var profile CandidateProfile
	if err := s.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return CandidateProfile{}, wrapLookup("candidate profile", id, err)
	}
	return profile, nil
}

// CreateInvitation stores a pending invitation after checking that the job
// and candidate profile it points at exist.
func (s *Store) CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error) {
	inv.ID = 0
	inv.Status = InvitationPending
	inv.CreatedAt = s.now().UTC().Truncate(time.Microsecond)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&Job{}, inv.JobID).Error; err != nil {
			return wrapLookup("job", inv.JobID, err)
		}
		if err := tx.Select("id").First(&CandidateProfile{}, inv.CandidateProfileID).Error; err != nil {
			return wrapLookup("candidate profile", inv.CandidateProfileID, err)
		}
		if err := tx.Create(&inv).Error; err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

func wrapLookup(kind string, id int64, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %d: %w", kind, id, err)
}
