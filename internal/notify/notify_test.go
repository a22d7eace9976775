package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/queue"
	"github.com/thatlq1812/user-agreement/internal/repository/memory"
)

type recordingSubscriber struct {
	name string
	got  []Event
	err  error
}

func (r *recordingSubscriber) Name() string { return r.name }

func (r *recordingSubscriber) Handle(ctx context.Context, ev Event) error {
	r.got = append(r.got, ev)
	return r.err
}

type fakeSender struct {
	to, subject, body string
	calls             int
}

func (f *fakeSender) Send(to, subject, body string) error {
	f.to, f.subject, f.body = to, subject, body
	f.calls++
	return nil
}

func rejectedEvent() Event {
	return Event{
		Kind:       EventRejected,
		Agreement:  &domain.Agreement{ID: 3, Title: "Privacy"},
		Submission: &domain.Submission{AgreementID: 3, RevisionID: 9, UserID: "u1", Decision: domain.DecisionRejected},
		Account:    &domain.Account{ID: "u1", Email: "u1@example.com"},
	}
}

func TestBus_DeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &recordingSubscriber{name: "failing", err: errors.New("down")}
	ok := &recordingSubscriber{name: "ok"}
	bus := NewBus(zap.NewNop(), failing, ok)

	err := bus.Dispatch(context.Background(), rejectedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

func TestBus_RejectsIncompleteEvent(t *testing.T) {
	bus := NewBus(nil)
	err := bus.Dispatch(context.Background(), Event{Kind: EventAccepted})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRejectionSubscriber(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userData := memory.NewUserDataRepository()
	q := queue.NewMemory(func() time.Time { return now })
	sub := NewRejectionSubscriber(userData, q, func() time.Time { return now })

	require.NoError(t, sub.Handle(ctx, rejectedEvent()))

	memo, err := userData.RejectedRevisions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{3: 9}, memo)

	tasks, err := q.Claim(ctx, domain.QueueExpiry, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	var task domain.ExpiryTask
	require.NoError(t, tasks[0].Decode(&task))
	assert.Equal(t, domain.ExpiryTask{AgreementID: 3, RevisionID: 9, UserID: "u1", EnqueuedAt: now}, task)

	accepted := rejectedEvent()
	accepted.Kind = EventAccepted
	require.NoError(t, sub.Handle(ctx, accepted))

	memo, err = userData.RejectedRevisions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, memo)
}

func TestMailSubscriber(t *testing.T) {
	sender := &fakeSender{}
	sub := NewMailSubscriber(sender, zap.NewNop())

	require.NoError(t, sub.Handle(context.Background(), rejectedEvent()))
	assert.Equal(t, "u1@example.com", sender.to)
	assert.Equal(t, "You declined: Privacy", sender.subject)

	noAddress := rejectedEvent()
	noAddress.Account = nil
	require.NoError(t, sub.Handle(context.Background(), noAddress))
	assert.Equal(t, 1, sender.calls)
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, EventAccepted, KindFor(domain.DecisionAccepted))
	assert.Equal(t, EventRejected, KindFor(domain.DecisionRejected))
}
