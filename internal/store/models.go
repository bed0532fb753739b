package store

import (
	"time"

	"gorm.io/gorm"
)

// Message is a persisted chat message. Read only ever moves from false to true.
type Message struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	SenderID   int64     `json:"senderId" gorm:"index:idx_messages_pair,priority:1;not null"`
	ReceiverID int64     `json:"receiverId" gorm:"index:idx_messages_pair,priority:2;index;not null"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	Read       bool      `json:"read" gorm:"not null;default:false;index"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null"`
}

// AfterFind normalizes timestamps so a fetched row encodes identically to the
// row returned at creation time.
func (m *Message) AfterFind(*gorm.DB) error {
	m.CreatedAt = m.CreatedAt.UTC()
	return nil
}

// Company is the employer a job belongs to.
type Company struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Website   string    `json:"website,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Job is a posting a candidate can be invited to.
type Job struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	CompanyID   int64     `json:"companyId" gorm:"index;not null"`
	Title       string    `json:"title" gorm:"type:text;not null"`
	Location    string    `json:"location,omitempty" gorm:"type:text"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CandidateProfile links a candidate user to their job-seeking profile.
type CandidateProfile struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UserID    int64     `json:"userId" gorm:"uniqueIndex;not null"`
	Headline  string    `json:"headline,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt"`
}

// InvitationStatus tracks whether a candidate answered an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation asks a candidate to apply to a job.
type Invitation struct {
	ID                 int64            `json:"id" gorm:"primaryKey"`
	JobID              int64            `json:"jobId" gorm:"index;not null"`
	CandidateProfileID int64            `json:"candidateProfileId" gorm:"index;not null"`
	InvitedByUserID    int64            `json:"invitedByUserId" gorm:"not null"`
	Message            string           `json:"message,omitempty" gorm:"type:text"`
	Status             InvitationStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// AfterFind normalizes timestamps to UTC.
func (i *Invitation) AfterFind(*gorm.DB) error {
	i.CreatedAt = i.CreatedAt.UTC()
	return nil
}
