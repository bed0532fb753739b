// Package storetest opens throwaway in-memory databases for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Tyrowin/jobchat/internal/store"
)

// Open returns a migrated in-memory sqlite database that is closed when the
// test finishes.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	db, err := store.Open(context.Background(), store.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background(), db))

	t.Cleanup(func() {
		_ = store.Close(db)
	})
	return db
}

// Fixture is a fully linked invitation graph.
type Fixture struct {
	Company    store.Company
	Job        store.Job
	Candidate  store.CandidateProfile
	Invitation store.Invitation
}

// SeedInvitation inserts a company, job, candidate profile for candidateUserID
// and a pending invitation linking them.
func SeedInvitation(t *testing.T, db *gorm.DB, candidateUserID int64) Fixture {
	t.Helper()
	req := require.New(t)

	f := Fixture{
		Company:   store.Company{Name: "Acme Robotics", Website: "https://acme.example.com"},
		Candidate: store.CandidateProfile{UserID: candidateUserID, Headline: "Go engineer"},
	}
	req.NoError(db.Create(&f.Company).Error)
	req.NoError(db.Create(&f.Candidate).Error)

	f.Job = store.Job{CompanyID: f.Company.ID, Title: "Backend Engineer", Location: "Remote"}
	req.NoError(db.Create(&f.Job).Error)

	f.Invitation = store.Invitation{
		JobID:              f.Job.ID,
		CandidateProfileID: f.Candidate.ID,
		InvitedByUserID:    1,
		Message:            "We would love to talk",
		Status:             store.InvitationPending,
	}
	req.NoError(db.Create(&f.Invitation).Error)
	return f
}
