// Package matchqueue implements C4 Queue State: the in-memory indices
// over waiting players and pending matches, and the addPlayer/removePlayer
// operations (spec.md §4.1). It also owns the invariant that every
// PendingMatch has exactly one active expiration timer (spec.md invariant
// 3): every code path that removes a PendingMatch from the index stops
// that timer as part of the same locked operation.
//
// Grounded on the mutex-guarded pool pattern in
// internal/gameserver/matchmaking.go and the MatchError-returning queue
// operations of internal/matching/matchmaker.go.
package matchqueue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thetranscendence/matchmaking/internal/apperrors"
	"github.com/thetranscendence/matchmaking/internal/notifier"
	"github.com/thetranscendence/matchmaking/internal/penalty"
)

// ParticipantStatus is a PendingMatch participant's ready-check status.
type ParticipantStatus string

const (
	StatusPending  ParticipantStatus = "PENDING"
	StatusAccepted ParticipantStatus = "ACCEPTED"
	StatusDeclined ParticipantStatus = "DECLINED"
)

// QueuedPlayer is one waiting participant (spec.md §3).
type QueuedPlayer struct {
	UserID      string
	SocketID    string
	Elo         int
	JoinTime    time.Time
	RangeFactor float64
	Priority    bool
}

// Participant is a frozen tuple describing one side of a PendingMatch.
type Participant struct {
	UserID   string
	SocketID string
	Elo      int
	Status   ParticipantStatus
}

// PendingMatch is an accept/decline session between two players
// (spec.md §3). Exported fields are read-only outside this package;
// mutate only through Queue's methods, which hold the lock.
type PendingMatch struct {
	MatchID   string
	ExpiresAt time.Time
	Player1   Participant
	Player2   Participant
	timer     *time.Timer
}

// snapshot returns a value copy safe to read without the queue's lock.
func (m *PendingMatch) snapshot() PendingMatch {
	return PendingMatch{MatchID: m.MatchID, ExpiresAt: m.ExpiresAt, Player1: m.Player1, Player2: m.Player2}
}

// ParticipantInput is the input to CreatePendingMatch for one side.
type ParticipantInput struct {
	UserID   string
	SocketID string
	Elo      int
}

// AcceptOutcome is the result of a successful Accept call.
type AcceptOutcome struct {
	// BothAccepted is true exactly once per match: the single invocation
	// that observes both participants as ACCEPTED must drive Finalize.
	BothAccepted bool
	Match        PendingMatch
}

// Queue holds the four indices described in spec.md §4.1, guarded by a
// single mutex for the duration of every public operation, per the
// lock-guarded shared-state model permitted by §5.
type Queue struct {
	mu sync.Mutex

	waitingByUser   map[string]*QueuedPlayer
	waitingBySocket map[string]struct{}
	pendingMatches  map[string]*PendingMatch

	penaltyStore penalty.Store
	notifier     notifier.Notifier
	nowFunc      func() time.Time
}

// Option customizes a Queue.
type Option func(*Queue)

// WithNowFunc overrides the clock used for JoinTime stamping (tests use
// this to control wait-time-dependent behavior deterministically).
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(q *Queue) {
		if nowFunc != nil {
			q.nowFunc = nowFunc
		}
	}
}

// WithNotifier wires the queue-stats broadcast AddPlayer emits on every
// successful join (spec.md §4.1: "triggers a queue-stats broadcast").
// Tests that don't care about the broadcast may omit this option; the
// queue then falls back to a no-op notifier.
func WithNotifier(n notifier.Notifier) Option {
	return func(q *Queue) {
		if n != nil {
			q.notifier = n
		}
	}
}

// NewQueue constructs an empty Queue.
func NewQueue(penaltyStore penalty.Store, opts ...Option) *Queue {
	q := &Queue{
		waitingByUser:   make(map[string]*QueuedPlayer),
		waitingBySocket: make(map[string]struct{}),
		pendingMatches:  make(map[string]*PendingMatch),
		penaltyStore:    penaltyStore,
		notifier:        noopNotifier{},
		nowFunc:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// noopNotifier is the default Queue notifier when WithNotifier is not
// supplied, so AddPlayer's broadcast is always safe to call.
type noopNotifier struct{}

func (noopNotifier) QueueJoined(string, int, bool)                      {}
func (noopNotifier) QueueLeft(string)                                   {}
func (noopNotifier) QueueStats(int, int)                                {}
func (noopNotifier) MatchProposal(string, string, time.Time, int)       {}
func (noopNotifier) MatchConfirmed(string, string, string, string)      {}
func (noopNotifier) MatchFailed(string, string, string, string, string) {}
func (noopNotifier) MatchCancelled(string, string, string)              {}
func (noopNotifier) Error(string, string, map[string]any)               {}

// AddPlayer inserts a new waiting player (spec.md §4.1). priority is true
// only on the re-queue path after an innocent cancellation or a
// game-creation failure.
func (q *Queue) AddPlayer(userID, socketID string, elo int, priority bool) (*QueuedPlayer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if p, err := q.penaltyStore.GetActivePenalty(userID); err == nil && p != nil {
		return nil, apperrors.Banned(p.Reason, p.ExpiresAt.UnixMilli())
	}

	if _, waiting := q.waitingByUser[userID]; waiting {
		return nil, apperrors.ErrAlreadyQueued
	}
	if q.isUserInPendingMatchLocked(userID) {
		return nil, apperrors.ErrAlreadyQueued
	}
	if _, busy := q.waitingBySocket[socketID]; busy {
		return nil, apperrors.ErrSocketBusy
	}

	player := &QueuedPlayer{
		UserID:      userID,
		SocketID:    socketID,
		Elo:         elo,
		JoinTime:    q.nowFunc(),
		RangeFactor: 1.0,
		Priority:    priority,
	}
	q.waitingByUser[userID] = player
	q.waitingBySocket[socketID] = struct{}{}

	q.notifier.QueueStats(len(q.waitingByUser), len(q.pendingMatches))
	return player, nil
}

// RemovePlayer removes a waiting player, identified by either userId or
// socketId. Idempotent: removing an absent player is not an error. Does
// not touch PendingMatches.
func (q *Queue) RemovePlayer(identifier string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if player, ok := q.waitingByUser[identifier]; ok {
		delete(q.waitingByUser, player.UserID)
		delete(q.waitingBySocket, player.SocketID)
		return true
	}

	for userID, player := range q.waitingByUser {
		if player.SocketID == identifier {
			delete(q.waitingByUser, userID)
			delete(q.waitingBySocket, identifier)
			return true
		}
	}
	return false
}

// IsUserInPendingMatch reports whether userID is a participant of any
// PendingMatch.
func (q *Queue) IsUserInPendingMatch(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isUserInPendingMatchLocked(userID)
}

func (q *Queue) isUserInPendingMatchLocked(userID string) bool {
	for _, m := range q.pendingMatches {
		if m.Player1.UserID == userID || m.Player2.UserID == userID {
			return true
		}
	}
	return false
}

// Snapshot returns a value copy of every waiting player, for the matcher
// tick to sort and scan without holding the queue lock for the duration
// of the algorithm.
func (q *Queue) Snapshot() []QueuedPlayer {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedPlayer, 0, len(q.waitingByUser))
	for _, p := range q.waitingByUser {
		out = append(out, *p)
	}
	return out
}

// BumpRangeFactor persists a grown rangeFactor on the player still
// identified by userID (a no-op if the player has since left the queue;
// spec.md invariant 4: rangeFactor is monotonically non-decreasing while
// queued, so callers must only ever increase it).
func (q *Queue) BumpRangeFactor(userID string, rangeFactor float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p, ok := q.waitingByUser[userID]; ok && rangeFactor > p.RangeFactor {
		p.RangeFactor = rangeFactor
	}
}

// RemoveWaitingPair atomically removes two waiting players from the
// waiting indices (used by the matcher tick once it selects a pair).
func (q *Queue) RemoveWaitingPair(userID1, userID2 string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, userID := range [2]string{userID1, userID2} {
		if p, ok := q.waitingByUser[userID]; ok {
			delete(q.waitingByUser, userID)
			delete(q.waitingBySocket, p.SocketID)
		}
	}
}

// CreatePendingMatch inserts a new PendingMatch with both participants
// PENDING (spec.md §4.3 step 3) and returns its fresh matchId and
// expiresAt. The timer itself is scheduled by the caller (C6) and
// attached via SetTimer, keeping time.AfterFunc construction — a
// C6 concern — out of the index package.
func (q *Queue) CreatePendingMatch(p1, p2 ParticipantInput, acceptTimeout time.Duration) PendingMatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	match := &PendingMatch{
		MatchID:   uuid.New().String(),
		ExpiresAt: q.nowFunc().Add(acceptTimeout),
		Player1:   Participant{UserID: p1.UserID, SocketID: p1.SocketID, Elo: p1.Elo, Status: StatusPending},
		Player2:   Participant{UserID: p2.UserID, SocketID: p2.SocketID, Elo: p2.Elo, Status: StatusPending},
	}
	q.pendingMatches[match.MatchID] = match
	return match.snapshot()
}

// SetTimer attaches the expiration timer handle to matchID. Returns false
// if the match no longer exists (already resolved before the timer could
// be scheduled).
func (q *Queue) SetTimer(matchID string, timer *time.Timer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.pendingMatches[matchID]
	if !ok {
		return false
	}
	m.timer = timer
	return true
}

// Accept records an accept for userID on matchID (spec.md §4.3). If both
// participants are now ACCEPTED, BothAccepted is true on exactly one
// invocation — the caller holding that result is responsible for driving
// Finalize; all others (including the duplicate-accept no-op path) must
// treat the call as already handled.
func (q *Queue) Accept(userID, matchID string) (AcceptOutcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.pendingMatches[matchID]
	if !ok {
		return AcceptOutcome{}, apperrors.ErrMatchNotFound
	}

	participant := q.participantOf(m, userID)
	if participant == nil {
		return AcceptOutcome{}, apperrors.ErrNotParticipant
	}

	if participant.Status != StatusPending {
		// Idempotent no-op: already ACCEPTED or DECLINED.
		return AcceptOutcome{BothAccepted: false, Match: m.snapshot()}, nil
	}

	participant.Status = StatusAccepted

	if m.Player1.Status == StatusAccepted && m.Player2.Status == StatusAccepted {
		return AcceptOutcome{BothAccepted: true, Match: m.snapshot()}, nil
	}
	return AcceptOutcome{BothAccepted: false, Match: m.snapshot()}, nil
}

// Decline records a decline for userID on matchID, removes the
// PendingMatch, and stops its timer (spec.md §4.3: decline always enters
// Cancel). Returns the match snapshot taken just before removal, in which
// the declining participant's status is already DECLINED.
func (q *Queue) Decline(userID, matchID string) (PendingMatch, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.pendingMatches[matchID]
	if !ok {
		return PendingMatch{}, apperrors.ErrMatchNotFound
	}
	participant := q.participantOf(m, userID)
	if participant == nil {
		return PendingMatch{}, apperrors.ErrNotParticipant
	}

	participant.Status = StatusDeclined
	snap := m.snapshot()
	q.removeLocked(matchID)
	return snap, nil
}

// ExpirePendingMatch removes matchID from the index on timer fire
// (spec.md §4.3 "Timer fires"). Returns false if the match was already
// resolved (accept/decline/duplicate timer race) before the timer's
// callback acquired the lock — the callback must treat that as a no-op.
func (q *Queue) ExpirePendingMatch(matchID string) (PendingMatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.pendingMatches[matchID]
	if !ok {
		return PendingMatch{}, false
	}
	snap := m.snapshot()
	q.removeLocked(matchID)
	return snap, true
}

// RemoveForFinalize removes matchID from the index as the first step of
// Finalize (spec.md §4.4 step 1: remove before the remote call, so a
// reentrant accept cannot finalize twice). Returns false if the match was
// already removed.
func (q *Queue) RemoveForFinalize(matchID string) (PendingMatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.pendingMatches[matchID]
	if !ok {
		return PendingMatch{}, false
	}
	snap := m.snapshot()
	q.removeLocked(matchID)
	return snap, true
}

// removeLocked deletes matchID from the index and stops its timer,
// preserving invariant 3. Must be called with q.mu held.
func (q *Queue) removeLocked(matchID string) {
	m, ok := q.pendingMatches[matchID]
	if !ok {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	delete(q.pendingMatches, matchID)
}

func (q *Queue) participantOf(m *PendingMatch, userID string) *Participant {
	switch userID {
	case m.Player1.UserID:
		return &m.Player1
	case m.Player2.UserID:
		return &m.Player2
	default:
		return nil
	}
}

// Stats reports the admin/queue_stats view (spec.md §4.5, §6).
func (q *Queue) Stats() (size, pending int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waitingByUser), len(q.pendingMatches)
}
