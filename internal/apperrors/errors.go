// Package apperrors defines the error kinds surfaced by the matchmaking
// core (spec.md §7), following the sentinel-error re-export pattern used
// by internal/service/errors rather than the teacher's two mutually
// conflicting internal/errors.AppError definitions.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error kinds raised by the queue, FSM, or
// gateway layers.
type Kind string

const (
	KindBanned         Kind = "BANNED"
	KindAlreadyQueued  Kind = "ALREADY_QUEUED"
	KindSocketBusy     Kind = "SOCKET_BUSY"
	KindMatchNotFound  Kind = "MATCH_NOT_FOUND"
	KindNotParticipant Kind = "NOT_PARTICIPANT"
	KindInvalidPayload Kind = "INVALID_PAYLOAD"
)

// MatchError is the one error type this module uses for every §7 error
// kind. It carries enough structure for the gateway to turn it into an
// outbound `error` event without string-matching the message.
type MatchError struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *MatchError) Error() string {
	return e.Message
}

// Is allows errors.Is(err, apperrors.ErrMatchNotFound) style comparisons
// against the sentinel values below by matching on Kind.
func (e *MatchError) Is(target error) bool {
	var me *MatchError
	if !errors.As(target, &me) {
		return false
	}
	return e.Kind == me.Kind
}

// Sentinel values for errors.Is comparisons; construct new *MatchError
// instances with the Banned and InvalidPayload helpers when a
// caller-specific message or detail set is needed.
var (
	ErrBanned         error = &MatchError{Kind: KindBanned, Message: "user is banned"}
	ErrAlreadyQueued  error = &MatchError{Kind: KindAlreadyQueued, Message: "user is already queued or in a pending match"}
	ErrSocketBusy     error = &MatchError{Kind: KindSocketBusy, Message: "socket is already associated with a queued player"}
	ErrMatchNotFound  error = &MatchError{Kind: KindMatchNotFound, Message: "pending match not found"}
	ErrNotParticipant error = &MatchError{Kind: KindNotParticipant, Message: "caller is not a participant of this match"}
	ErrInvalidPayload error = &MatchError{Kind: KindInvalidPayload, Message: "invalid payload"}
)

// Banned constructs a Banned error carrying the penalty's expiration.
func Banned(reason string, expiresAtUnixMS int64) error {
	return &MatchError{
		Kind:    KindBanned,
		Message: fmt.Sprintf("user is banned (%s) until %d", reason, expiresAtUnixMS),
		Details: map[string]any{"reason": reason, "expiresAt": expiresAtUnixMS},
	}
}

// InvalidPayload constructs an InvalidPayload error whose message is the
// given validation message; it sets no Details.
func InvalidPayload(validationMessage string) error {
	return &MatchError{
		Kind:    KindInvalidPayload,
		Message: validationMessage,
	}
}

// KindOf extracts the Kind from err if it is (or wraps) a *MatchError.
func KindOf(err error) (Kind, bool) {
	var me *MatchError
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return "", false
}
