// Package matcher implements C5: the fixed-period tick that pairs
// compatible waiting players (spec.md §4.2). Grounded on the
// time.Ticker-driven loop shape used across the teacher's background
// workers (internal/monitoring, internal/pool) and the panic-isolated
// tick body required so one bad tick never kills the loop (spec.md §7).
package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/thetranscendence/matchmaking/internal/logger"
	"github.com/thetranscendence/matchmaking/internal/matchqueue"
	"github.com/thetranscendence/matchmaking/internal/metrics"
	"github.com/thetranscendence/matchmaking/internal/notifier"
	"github.com/thetranscendence/matchmaking/internal/readycheck"
)

// readyCheckStarter is the subset of *readycheck.FSM the matcher depends
// on, narrowed so tests can supply a lightweight fake.
type readyCheckStarter interface {
	StartPendingMatch(p1, p2 matchqueue.ParticipantInput)
}

var _ readyCheckStarter = (*readycheck.FSM)(nil)

// Matcher runs the periodic matchmaking tick.
type Matcher struct {
	queue      *matchqueue.Queue
	readyCheck readyCheckStarter
	notifier   notifier.Notifier

	tickInterval      time.Duration
	baseTolerance     float64
	expansionInterval time.Duration
	expansionStep     float64

	nowFunc func() time.Time
}

// Option customizes a Matcher.
type Option func(*Matcher)

// WithNowFunc overrides the clock used for wait-time computation.
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(m *Matcher) {
		if nowFunc != nil {
			m.nowFunc = nowFunc
		}
	}
}

// NewMatcher constructs a Matcher. tickInterval is TICK_RATE_MS,
// baseTolerance is BASE_TOLERANCE, expansionInterval is
// EXPANSION_INTERVAL_MS, and expansionStep is EXPANSION_STEP.
func NewMatcher(
	queue *matchqueue.Queue,
	readyCheck readyCheckStarter,
	n notifier.Notifier,
	tickInterval time.Duration,
	baseTolerance float64,
	expansionInterval time.Duration,
	expansionStep float64,
	opts ...Option,
) *Matcher {
	m := &Matcher{
		queue:             queue,
		readyCheck:        readyCheck,
		notifier:          n,
		tickInterval:      tickInterval,
		baseTolerance:     baseTolerance,
		expansionInterval: expansionInterval,
		expansionStep:     expansionStep,
		nowFunc:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run blocks, ticking until ctx is cancelled. Intended to be launched as
// a single long-lived goroutine from cmd/server.
func (m *Matcher) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// Tick runs exactly one matchmaking pass on demand, outside Run's ticker
// loop. Exported for tests that need deterministic, single-tick control.
func (m *Matcher) Tick() {
	m.tick()
}

// tick runs exactly one matchmaking pass (spec.md §4.2). A panic anywhere
// in the pairing algorithm is contained here so the ticker loop survives
// it and resumes from current queue state on the next period.
func (m *Matcher) tick() {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().LogMatchEvent("tick_panic", "", logger.Fields{"recover": r})
		}
	}()

	start := m.nowFunc()
	candidates := m.queue.Snapshot()
	paired := 0
	if len(candidates) >= 2 {
		paired = m.pair(candidates)
	}

	size, pending := m.queue.Stats()
	duration := m.nowFunc().Sub(start)
	metrics.ObserveTick(duration, size, pending)
	m.notifier.QueueStats(size, pending)
	logger.GetLogger().LogTickSummary(size, paired, duration)
}

// pair implements steps 2-5 of spec.md §4.2 against a snapshot of the
// waiting pool taken once at the start of the tick, and returns the number
// of pairs it formed.
func (m *Matcher) pair(candidates []matchqueue.QueuedPlayer) int {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority
		}
		if candidates[i].Elo != candidates[j].Elo {
			return candidates[i].Elo < candidates[j].Elo
		}
		return candidates[i].UserID < candidates[j].UserID
	})

	now := m.nowFunc()
	matched := make(map[string]bool, len(candidates))
	paired := 0

	for i := range candidates {
		a := &candidates[i]
		if matched[a.UserID] {
			continue
		}

		a.RangeFactor = m.expandedRangeFactor(a.UserID, a.RangeFactor, now.Sub(a.JoinTime))

		toleranceMultiplier := 1.0
		if a.Priority {
			toleranceMultiplier = 2.0
		}
		toleranceA := m.baseTolerance * a.RangeFactor * toleranceMultiplier

		for j := i + 1; j < len(candidates); j++ {
			b := &candidates[j]
			if matched[b.UserID] {
				continue
			}

			eloDiff := absInt(a.Elo - b.Elo)
			toleranceB := m.baseTolerance * b.RangeFactor
			limit := toleranceA
			if toleranceB < limit {
				limit = toleranceB
			}

			if float64(eloDiff) <= limit {
				matched[a.UserID] = true
				matched[b.UserID] = true
				m.queue.RemoveWaitingPair(a.UserID, b.UserID)
				m.readyCheck.StartPendingMatch(
					matchqueue.ParticipantInput{UserID: a.UserID, SocketID: a.SocketID, Elo: a.Elo},
					matchqueue.ParticipantInput{UserID: b.UserID, SocketID: b.SocketID, Elo: b.Elo},
				)
				paired++
				break
			}
		}
	}
	return paired
}

// expandedRangeFactor applies the permanent-while-queued range expansion
// (spec.md §4.2 step 4, invariant 4) and persists any growth back onto
// the queued player.
func (m *Matcher) expandedRangeFactor(userID string, rangeFactor float64, waitTime time.Duration) float64 {
	threshold := time.Duration(float64(m.expansionInterval) * rangeFactor)
	if waitTime <= threshold {
		return rangeFactor
	}
	grown := rangeFactor + m.expansionStep
	m.queue.BumpRangeFactor(userID, grown)
	return grown
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
