// ABOUTME: Error taxonomy for realtime sessions
// ABOUTME: Fatal errors end the connection; rejected-operation errors leave it open

package realtime

import "errors"

// Fatal to the connection.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrBadJoinParameter = errors.New("missing or malformed conversation member")
	ErrJoinFailed       = errors.New("cannot start conversation")
	ErrThreadLoadFailed = errors.New("failed to load message thread")
)

// Rejected operations. The connection stays open.
var (
	ErrCannotMessageSelf = errors.New("you cannot send messages to yourself")
	ErrUnknownMember     = errors.New("member not found")
	ErrRecipientMismatch = errors.New("recipient is not part of this conversation")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrContentTooLong    = errors.New("message content is too long")
	ErrDuplicateSend     = errors.New("message already sent")
	ErrRateLimited       = errors.New("sending too fast")
	ErrPersistFailed     = errors.New("failed to send message")
	ErrSessionClosed     = errors.New("session closed")
	ErrNotJoined         = errors.New("session has not joined a conversation")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrUnauthenticated, "unauthenticated"},
	{ErrBadJoinParameter, "bad_join_parameter"},
	{ErrJoinFailed, "join_failed"},
	{ErrThreadLoadFailed, "thread_load_failed"},
	{ErrCannotMessageSelf, "self_message"},
	{ErrUnknownMember, "unknown_member"},
	{ErrRecipientMismatch, "recipient_mismatch"},
	{ErrEmptyContent, "empty_content"},
	{ErrContentTooLong, "content_too_long"},
	{ErrDuplicateSend, "duplicate"},
	{ErrRateLimited, "rate_limited"},
	{ErrPersistFailed, "persist_failed"},
	{ErrSessionClosed, "session_closed"},
	{ErrNotJoined, "not_joined"},
}

// Reason returns a stable machine-readable label for err, used in frames
// and metric labels. Unknown errors map to "internal".
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}

// IsFatal reports whether err must terminate the connection.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrBadJoinParameter) ||
		errors.Is(err, ErrJoinFailed) ||
		errors.Is(err, ErrThreadLoadFailed)
}
