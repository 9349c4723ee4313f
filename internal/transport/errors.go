package transport

import "errors"

// ErrSourceGone reports that a referenced message no longer exists on the
// platform. The scheduler treats it as a permanent failure and drops the
// job instead of rescheduling it.
var ErrSourceGone = errors.New("source message no longer exists")

// IsSourceGone reports whether err indicates a permanently missing source
// message.
func IsSourceGone(err error) bool {
	return errors.Is(err, ErrSourceGone)
}
