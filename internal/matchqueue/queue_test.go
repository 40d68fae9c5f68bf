package matchqueue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetranscendence/matchmaking/internal/apperrors"
	"github.com/thetranscendence/matchmaking/internal/matchqueue"
	"github.com/thetranscendence/matchmaking/internal/penalty"
)

// fakeStatsNotifier records every queue_stats broadcast it receives; every
// other event is ignored.
type fakeStatsNotifier struct {
	mu    sync.Mutex
	calls [][2]int
}

func (f *fakeStatsNotifier) QueueStats(size, pending int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]int{size, pending})
}

func (f *fakeStatsNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeStatsNotifier) last() [2]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeStatsNotifier) QueueJoined(string, int, bool)                      {}
func (f *fakeStatsNotifier) QueueLeft(string)                                   {}
func (f *fakeStatsNotifier) MatchProposal(string, string, time.Time, int)       {}
func (f *fakeStatsNotifier) MatchConfirmed(string, string, string, string)      {}
func (f *fakeStatsNotifier) MatchFailed(string, string, string, string, string) {}
func (f *fakeStatsNotifier) MatchCancelled(string, string, string)              {}
func (f *fakeStatsNotifier) Error(string, string, map[string]any)               {}

// fakePenaltyStore is an in-memory penalty.Store for queue tests.
type fakePenaltyStore struct {
	active map[string]*penalty.Penalty
}

func newFakePenaltyStore() *fakePenaltyStore {
	return &fakePenaltyStore{active: make(map[string]*penalty.Penalty)}
}

func (f *fakePenaltyStore) GetActivePenalty(userID string) (*penalty.Penalty, error) {
	if p, ok := f.active[userID]; ok {
		return p, nil
	}
	return nil, nil
}

func (f *fakePenaltyStore) AddPenalty(userID string, durationSeconds int, reason string) error {
	f.active[userID] = &penalty.Penalty{
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: time.Now().Add(time.Duration(durationSeconds) * time.Second),
	}
	return nil
}

func TestQueue_AddPlayer_Success(t *testing.T) {
	store := newFakePenaltyStore()
	q := matchqueue.NewQueue(store)

	player, err := q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err)
	assert.Equal(t, "A", player.UserID)
	assert.Equal(t, 1.0, player.RangeFactor)

	size, pending := q.Stats()
	assert.Equal(t, 1, size)
	assert.Equal(t, 0, pending)
}

// addPlayer must trigger a queue-stats broadcast synchronously on success
// (spec.md §4.1), not merely wait for the next matcher tick.
func TestQueue_AddPlayer_Success_BroadcastsQueueStats(t *testing.T) {
	store := newFakePenaltyStore()
	n := &fakeStatsNotifier{}
	q := matchqueue.NewQueue(store, matchqueue.WithNotifier(n))

	_, err := q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err)

	require.Equal(t, 1, n.count())
	assert.Equal(t, [2]int{1, 0}, n.last())

	_, err = q.AddPlayer("B", "sB", 1500, false)
	require.NoError(t, err)
	require.Equal(t, 2, n.count())
	assert.Equal(t, [2]int{2, 0}, n.last())
}

func TestQueue_AddPlayer_Failure_DoesNotBroadcastQueueStats(t *testing.T) {
	store := newFakePenaltyStore()
	n := &fakeStatsNotifier{}
	q := matchqueue.NewQueue(store, matchqueue.WithNotifier(n))

	_, err := q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err)
	require.Equal(t, 1, n.count())

	_, err = q.AddPlayer("A", "sB", 1500, false)
	require.Error(t, err)
	assert.Equal(t, 1, n.count(), "a rejected addPlayer must not broadcast queue_stats")
}

func TestQueue_AddPlayer_Banned(t *testing.T) {
	store := newFakePenaltyStore()
	store.active["A"] = &penalty.Penalty{UserID: "A", Reason: "abuse", ExpiresAt: time.Now().Add(time.Minute)}
	q := matchqueue.NewQueue(store)

	_, err := q.AddPlayer("A", "sA", 1500, false)
	require.Error(t, err)
	kind, ok := apperrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindBanned, kind)
}

func TestQueue_AddPlayer_AlreadyQueued(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	_, err := q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err)

	_, err = q.AddPlayer("A", "sB", 1500, false)
	require.ErrorIs(t, err, apperrors.ErrAlreadyQueued)
}

func TestQueue_AddPlayer_SocketBusy(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	_, err := q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err)

	_, err = q.AddPlayer("B", "sA", 1500, false)
	require.ErrorIs(t, err, apperrors.ErrSocketBusy)
}

func TestQueue_RoundTrip_AddRemoveAdd(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	_, err := q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err)

	assert.True(t, q.RemovePlayer("A"))

	_, err = q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err, "round-trip add-remove-add must not fail with AlreadyQueued")
}

func TestQueue_RemovePlayer_Idempotent(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	assert.False(t, q.RemovePlayer("ghost"))
}

func TestQueue_RemovePlayer_BySocketID(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	_, err := q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err)

	assert.True(t, q.RemovePlayer("sA"))
	size, _ := q.Stats()
	assert.Equal(t, 0, size)
}

func TestQueue_PendingMatch_Accept_BothAcceptedOnce(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	match := q.CreatePendingMatch(
		matchqueue.ParticipantInput{UserID: "A", SocketID: "sA", Elo: 1500},
		matchqueue.ParticipantInput{UserID: "B", SocketID: "sB", Elo: 1520},
		15*time.Second,
	)

	outcome, err := q.Accept("A", match.MatchID)
	require.NoError(t, err)
	assert.False(t, outcome.BothAccepted)

	outcome, err = q.Accept("B", match.MatchID)
	require.NoError(t, err)
	assert.True(t, outcome.BothAccepted, "the invocation completing mutual accept must report BothAccepted")

	// A third, duplicate accept (e.g. a reentrant client retry) must be a
	// pure no-op, never a second BothAccepted=true.
	outcome, err = q.Accept("A", match.MatchID)
	require.NoError(t, err)
	assert.False(t, outcome.BothAccepted)
}

func TestQueue_Accept_UnknownMatch(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	_, err := q.Accept("A", "does-not-exist")
	require.ErrorIs(t, err, apperrors.ErrMatchNotFound)
}

func TestQueue_Accept_NotParticipant(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	match := q.CreatePendingMatch(
		matchqueue.ParticipantInput{UserID: "A", SocketID: "sA", Elo: 1500},
		matchqueue.ParticipantInput{UserID: "B", SocketID: "sB", Elo: 1520},
		15*time.Second,
	)
	_, err := q.Accept("C", match.MatchID)
	require.ErrorIs(t, err, apperrors.ErrNotParticipant)
}

func TestQueue_Decline_RemovesMatch(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	match := q.CreatePendingMatch(
		matchqueue.ParticipantInput{UserID: "A", SocketID: "sA", Elo: 1500},
		matchqueue.ParticipantInput{UserID: "B", SocketID: "sB", Elo: 1520},
		15*time.Second,
	)

	declined, err := q.Decline("B", match.MatchID)
	require.NoError(t, err)
	assert.Equal(t, matchqueue.StatusDeclined, declined.Player2.Status)

	// Removed: a second decline must fail with MatchNotFound.
	_, err = q.Decline("A", match.MatchID)
	require.ErrorIs(t, err, apperrors.ErrMatchNotFound)
}

func TestQueue_RemoveForFinalize_OnlyOnce(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	match := q.CreatePendingMatch(
		matchqueue.ParticipantInput{UserID: "A", SocketID: "sA", Elo: 1500},
		matchqueue.ParticipantInput{UserID: "B", SocketID: "sB", Elo: 1520},
		15*time.Second,
	)

	_, ok := q.RemoveForFinalize(match.MatchID)
	assert.True(t, ok)

	_, ok = q.RemoveForFinalize(match.MatchID)
	assert.False(t, ok, "a second finalize on the same matchId must observe it already gone")
}

func TestQueue_IsUserInPendingMatch(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	assert.False(t, q.IsUserInPendingMatch("A"))

	q.CreatePendingMatch(
		matchqueue.ParticipantInput{UserID: "A", SocketID: "sA", Elo: 1500},
		matchqueue.ParticipantInput{UserID: "B", SocketID: "sB", Elo: 1520},
		15*time.Second,
	)
	assert.True(t, q.IsUserInPendingMatch("A"))
	assert.False(t, q.IsUserInPendingMatch("C"))
}

func TestQueue_AddPlayer_RejectsWhileInPendingMatch(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	q.CreatePendingMatch(
		matchqueue.ParticipantInput{UserID: "A", SocketID: "sA", Elo: 1500},
		matchqueue.ParticipantInput{UserID: "B", SocketID: "sB", Elo: 1520},
		15*time.Second,
	)

	_, err := q.AddPlayer("A", "sA2", 1500, false)
	require.ErrorIs(t, err, apperrors.ErrAlreadyQueued)
}

func TestQueue_BumpRangeFactor_OnlyIncreases(t *testing.T) {
	q := matchqueue.NewQueue(newFakePenaltyStore())
	_, err := q.AddPlayer("A", "sA", 1500, false)
	require.NoError(t, err)

	q.BumpRangeFactor("A", 2.0)
	q.BumpRangeFactor("A", 1.5) // must not shrink it back down

	snapshot := q.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, 2.0, snapshot[0].RangeFactor)
}
