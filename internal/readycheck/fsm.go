// Package readycheck implements C6: the two-phase accept/decline ready
// check and its handoff into Finalize (spec.md §4.3, §4.4). Grounded on
// the explicit state-machine style of internal/matching/matchmaker.go and
// the typed-result handling of internal/kakao/client.go and
// internal/portone/client.go for the Game Client call.
package readycheck

import (
	"context"
	"fmt"
	"time"

	"github.com/thetranscendence/matchmaking/internal/gameclient"
	"github.com/thetranscendence/matchmaking/internal/logger"
	"github.com/thetranscendence/matchmaking/internal/matchqueue"
	"github.com/thetranscendence/matchmaking/internal/metrics"
	"github.com/thetranscendence/matchmaking/internal/notifier"
	"github.com/thetranscendence/matchmaking/internal/penalty"
	"github.com/thetranscendence/matchmaking/internal/sessionlog"
)

// FSM drives the ready-check lifecycle for every PendingMatch created by
// the matcher tick.
type FSM struct {
	queue         *matchqueue.Queue
	notifier      notifier.Notifier
	penaltyStore  penalty.Store
	sessionLog    sessionlog.Log
	gameClient    *gameclient.Client
	acceptTimeout time.Duration
	penaltySecs   int
	nowFunc       func() time.Time
}

// Option customizes an FSM.
type Option func(*FSM)

// WithNowFunc overrides the clock used for session-log timestamps.
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(f *FSM) {
		if nowFunc != nil {
			f.nowFunc = nowFunc
		}
	}
}

// NewFSM constructs a ready-check FSM. acceptTimeout is
// MATCH_ACCEPT_TIMEOUT_MS and penaltySeconds is PENALTY_DURATION_SECONDS.
func NewFSM(
	queue *matchqueue.Queue,
	n notifier.Notifier,
	penaltyStore penalty.Store,
	sessionLog sessionlog.Log,
	gameClient *gameclient.Client,
	acceptTimeout time.Duration,
	penaltySeconds int,
	opts ...Option,
) *FSM {
	f := &FSM{
		queue:         queue,
		notifier:      n,
		penaltyStore:  penaltyStore,
		sessionLog:    sessionLog,
		gameClient:    gameClient,
		acceptTimeout: acceptTimeout,
		penaltySecs:   penaltySeconds,
		nowFunc:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// StartPendingMatch inserts a fresh PendingMatch for the pair the matcher
// selected, schedules its expiration timer, and emits match_proposal to
// both sides (spec.md §4.3 steps 1-5).
func (f *FSM) StartPendingMatch(p1, p2 matchqueue.ParticipantInput) {
	match := f.queue.CreatePendingMatch(p1, p2, f.acceptTimeout)

	timer := time.AfterFunc(f.acceptTimeout, func() { f.onTimeout(match.MatchID) })
	if !f.queue.SetTimer(match.MatchID, timer) {
		timer.Stop()
		return
	}

	f.notifier.MatchProposal(p1.UserID, match.MatchID, match.ExpiresAt, p2.Elo)
	f.notifier.MatchProposal(p2.UserID, match.MatchID, match.ExpiresAt, p1.Elo)
}

// Accept handles an accept(u, matchId) event. When both participants have
// now accepted, exactly this invocation drives Finalize.
func (f *FSM) Accept(userID, matchID string) error {
	outcome, err := f.queue.Accept(userID, matchID)
	if err != nil {
		return err
	}
	if outcome.BothAccepted {
		f.finalize(matchID)
	}
	return nil
}

// Decline handles a decline(u, matchId) event: it always enters Cancel
// with the declining player marked faulty.
func (f *FSM) Decline(userID, matchID string) error {
	match, err := f.queue.Decline(userID, matchID)
	if err != nil {
		return err
	}
	f.cancel(match, map[string]bool{userID: true}, "declined")
	return nil
}

// onTimeout is the expiration-timer callback. Any participant still
// PENDING at expiry is faulty (spec.md §4.3 "Timer fires").
func (f *FSM) onTimeout(matchID string) {
	match, ok := f.queue.ExpirePendingMatch(matchID)
	if !ok {
		return
	}
	faulty := make(map[string]bool, 2)
	if match.Player1.Status == matchqueue.StatusPending {
		faulty[match.Player1.UserID] = true
	}
	if match.Player2.Status == matchqueue.StatusPending {
		faulty[match.Player2.UserID] = true
	}
	f.cancel(match, faulty, "timeout")
}

// cancel implements Cancel(match, faulty, reason) (spec.md §4.3). The
// expiration timer and PendingMatch entry are already gone by the time
// cancel runs: every caller removed them as part of the same locked
// queue operation that produced the match snapshot.
func (f *FSM) cancel(match matchqueue.PendingMatch, faulty map[string]bool, reason string) {
	for _, p := range [2]matchqueue.Participant{match.Player1, match.Player2} {
		if faulty[p.UserID] {
			if err := f.penaltyStore.AddPenalty(p.UserID, f.penaltySecs, fmt.Sprintf("Matchmaking abuse: %s", reason)); err != nil {
				logger.GetLogger().LogDBOperation("add_penalty", "penalties", 0, err)
			}
			f.notifier.MatchCancelled(p.UserID, match.MatchID, "penalty_applied")
			metrics.ObserveOutcome("penalty_applied")
			continue
		}

		f.notifier.MatchCancelled(p.UserID, match.MatchID, "opponent_declined")
		metrics.ObserveOutcome("opponent_declined")
		if _, err := f.queue.AddPlayer(p.UserID, p.SocketID, p.Elo, true); err != nil {
			logger.GetLogger().LogMatchEvent("requeue_failed", match.MatchID, logger.Fields{
				"userId": p.UserID, "error": err.Error(),
			})
			continue
		}
		f.notifier.QueueJoined(p.UserID, p.Elo, true)
	}
}

// finalize implements Finalize (spec.md §4.4). Removing the PendingMatch
// is the first step, guaranteeing at most one invocation ever reaches
// this point for a given matchId (spec.md invariant 4, S6).
func (f *FSM) finalize(matchID string) {
	match, ok := f.queue.RemoveForFinalize(matchID)
	if !ok {
		return
	}

	entry := sessionlog.Entry{
		ID:        match.MatchID,
		Player1ID: match.Player1.UserID,
		Player2ID: match.Player2.UserID,
		Status:    "STARTED",
		StartedAt: f.nowFunc(),
	}
	if err := f.sessionLog.Append(entry); err != nil {
		logger.GetLogger().LogDBOperation("append_session_log", "matchmaking_sessions", 0, err)
	}

	result := f.gameClient.CreateGame(context.Background(), gameclient.CreateGameRequest{
		GameID:    match.MatchID,
		Player1ID: match.Player1.UserID,
		Player2ID: match.Player2.UserID,
	})

	if result.Success {
		f.notifier.MatchConfirmed(match.Player1.UserID, result.GameID, match.Player1.UserID, match.Player2.UserID)
		f.notifier.MatchConfirmed(match.Player2.UserID, result.GameID, match.Player1.UserID, match.Player2.UserID)
		metrics.ObserveOutcome("confirmed")
		return
	}

	metrics.ObserveOutcome("game_creation_failed")
	for _, p := range [2]matchqueue.Participant{match.Player1, match.Player2} {
		f.notifier.MatchFailed(p.UserID, match.MatchID, "game_creation_failed", result.Error, result.Message)
		if _, err := f.queue.AddPlayer(p.UserID, p.SocketID, p.Elo, true); err != nil {
			logger.GetLogger().LogMatchEvent("requeue_failed", match.MatchID, logger.Fields{
				"userId": p.UserID, "error": err.Error(),
			})
			continue
		}
		f.notifier.QueueJoined(p.UserID, p.Elo, true)
	}
}
