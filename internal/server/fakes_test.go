package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/jobchat/internal/config"
	"github.com/Tyrowin/jobchat/internal/store"
)

var errDatabaseDown = errors.New("database is down")

type fakeMessages struct {
	mu       sync.Mutex
	nextID   int64
	saved    []store.Message
	fail     bool
	onCreate func(store.Message)
}

func (f *fakeMessages) CreateMessage(_ context.Context, senderID, receiverID int64, content string) (store.Message, error) {
	f.mu.Lock()
	if f.fail {
		f.mu.Unlock()
		return store.Message{}, errDatabaseDown
	}
	f.nextID++
	msg := store.Message{
		ID:         f.nextID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.saved = append(f.saved, msg)
	hook := f.onCreate
	f.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return msg, nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeInvitations struct {
	invitations map[int64]store.Invitation
	jobs        map[int64]store.Job
	companies   map[int64]store.Company
	profiles    map[int64]store.CandidateProfile
}

func newFakeInvitations() *fakeInvitations {
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	return &fakeInvitations{
		invitations: map[int64]store.Invitation{
			1: {ID: 1, JobID: 10, CandidateProfileID: 100, InvitedByUserID: 5, Message: "Let's talk", Status: store.InvitationPending, CreatedAt: created},
		},
		jobs:      map[int64]store.Job{10: {ID: 10, CompanyID: 20, Title: "Backend Engineer", Location: "Remote", CreatedAt: created}},
		companies: map[int64]store.Company{20: {ID: 20, Name: "Acme Robotics", CreatedAt: created}},
		profiles:  map[int64]store.CandidateProfile{100: {ID: 100, UserID: 2, Headline: "Go engineer", CreatedAt: created}},
	}
}

func lookup[T any](m map[int64]T, id int64) (T, error) {
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, store.ErrNotFound
	}
	return v, nil
}

func (f *fakeInvitations) GetInvitation(_ context.Context, id int64) (store.Invitation, error) {
	return lookup(f.invitations, id)
}

func (f *fakeInvitations) GetJob(_ context.Context, id int64) (store.Job, error) {
	return lookup(f.jobs, id)
}

func (f *fakeInvitations) GetCompany(_ context.Context, id int64) (store.Company, error) {
	return lookup(f.companies, id)
}

func (f *fakeInvitations) GetCandidateProfile(_ context.Context, id int64) (store.CandidateProfile, error) {
	return lookup(f.profiles, id)
}

type published struct {
	subject string
	value   any
}

type fakeBus struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (b *fakeBus) Publish(_ context.Context, subject string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{subject: subject, value: v})
	return b.err
}

func (b *fakeBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.subject)
	}
	return out
}

type testHub struct {
	*Hub
	messages    *fakeMessages
	invitations *fakeInvitations
	bus         *fakeBus
}

func newTestHub(t *testing.T, limits ClientLimits) *testHub {
	t.Helper()
	if limits.RateLimit == (config.RateLimitConfig{}) {
		limits.RateLimit = config.RateLimitConfig{Burst: 100, RefillInterval: time.Second}
	}
	th := &testHub{
		messages:    &fakeMessages{},
		invitations: newFakeInvitations(),
		bus:         &fakeBus{},
	}
	th.Hub = NewHub(Options{
		Messages:    th.messages,
		Invitations: th.invitations,
		Bus:         th.bus,
		Logger:      zerolog.Nop(),
		Limits:      limits,
	})
	go th.Run()
	t.Cleanup(func() {
		_ = th.Shutdown(time.Second)
	})
	return th
}

// connect registers a socket without a network connection and waits until
// the hub has recorded it.
func (th *testHub) connect(t *testing.T, userID int64) *Client {
	t.Helper()
	before := len(th.Sockets(userID))
	client := NewClient(nil, th.Hub, identityFor(userID), "test")
	th.Register(client)
	require.Eventually(t, func() bool {
		return len(th.Sockets(userID)) == before+1
	}, time.Second, 5*time.Millisecond)
	return client
}
