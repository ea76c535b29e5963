// Package migraterr defines the closed set of error kinds the migration
// tool classifies remote and local failures into, mirroring the
// code+message shape the teacher uses for its ChannelError type.
package migraterr

import (
	"errors"
	"fmt"
)

// Kind identifies a category of error. Kinds are grouped by the
// component that raises them; see spec §7.
type Kind string

const (
	// Auth
	KindInvalidCredentials Kind = "AUTH_INVALID_CREDENTIALS"
	KindInvalidCode        Kind = "AUTH_INVALID_CODE"
	KindInvalid2FA         Kind = "AUTH_INVALID_2FA"
	KindSessionExpired     Kind = "AUTH_SESSION_EXPIRED"
	KindNetworkError       Kind = "AUTH_NETWORK_ERROR"

	// Dialog / conversation enumeration
	KindFetchFailed  Kind = "DIALOG_FETCH_FAILED"
	KindNotFound     Kind = "DIALOG_NOT_FOUND"
	KindAccessDenied Kind = "DIALOG_ACCESS_DENIED"

	// Destination group management
	KindCreateFailed   Kind = "GROUP_CREATE_FAILED"
	KindInviteFailed   Kind = "GROUP_INVITE_FAILED"
	KindUserRestricted Kind = "GROUP_USER_RESTRICTED"
	KindUserNotFound   Kind = "GROUP_USER_NOT_FOUND"
	KindGroupFloodWait Kind = "GROUP_FLOOD_WAIT"

	// Migration engine
	KindDialogFetchFailed Kind = "MIGRATION_DIALOG_FETCH_FAILED"
	KindGroupCreateFailed Kind = "MIGRATION_GROUP_CREATE_FAILED"
	KindInviteFailedMig   Kind = "MIGRATION_INVITE_FAILED"
	KindForwardFailed     Kind = "MIGRATION_FORWARD_FAILED"
	KindMigrationFlood    Kind = "MIGRATION_FLOOD_WAIT"
	KindAborted           Kind = "MIGRATION_ABORTED"

	// Progress store
	KindFileNotFound  Kind = "PROGRESS_FILE_NOT_FOUND"
	KindFileCorrupted Kind = "PROGRESS_FILE_CORRUPTED"
	KindWriteFailed   Kind = "PROGRESS_WRITE_FAILED"
	KindInvalidFormat Kind = "PROGRESS_INVALID_FORMAT"

	// Realtime tail sync
	KindListenerInitFailed Kind = "REALTIME_LISTENER_INIT_FAILED"
	KindRealtimeForward    Kind = "REALTIME_FORWARD_FAILED"
	KindQueueOverflow      Kind = "REALTIME_QUEUE_OVERFLOW"
	KindRealtimeFlood      Kind = "REALTIME_FLOOD_WAIT"
)

// Error is the concrete error type carried across package boundaries.
// Seconds is populated only for flood-wait kinds.
type Error struct {
	Kind    Kind
	Message string
	Seconds int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FloodWaitSeconds returns the remote-reported wait duration.
func (e *Error) FloodWaitSeconds() int {
	return e.Seconds
}

// IsFloodWait reports whether the error carries a flood-wait duration.
func (e *Error) IsFloodWait() bool {
	switch e.Kind {
	case KindGroupFloodWait, KindMigrationFlood, KindRealtimeFlood:
		return true
	default:
		return false
	}
}

// New builds a plain error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// FloodWait builds a flood-wait error carrying the remote-reported
// duration, defaulting to 60s when the remote omits it (spec §4.2/§4.4).
func FloodWait(kind Kind, seconds int) *Error {
	if seconds <= 0 {
		seconds = 60
	}
	return &Error{Kind: kind, Message: "flood wait", Seconds: seconds}
}

// As extracts a *Error from any error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
