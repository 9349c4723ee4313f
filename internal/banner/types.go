// Package banner implements recurring re-delivery of a designated message
// into one or more destinations: the job registry, its on-disk snapshot,
// and the polling scheduler that drives deliveries.
package banner

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultMinMinutes is the smallest interval a job may be created with.
const DefaultMinMinutes = 1

// DefaultTick bounds the worst-case scheduling error.
const DefaultTick = 15 * time.Second

var ErrIntervalTooShort = errors.New("banner interval below minimum")

// Key identifies the target surface of a job: a chat, or a chat+thread
// pair ("<chatID>" or "<chatID>:<threadID>"). Keys are unique within the
// registry; creating a second job for the same key replaces the first.
type Key string

func MakeKey(chatID int64, threadID int) Key {
	if threadID != 0 {
		return Key(strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(threadID))
	}
	return Key(strconv.FormatInt(chatID, 10))
}

// ParseKey splits a persisted key back into its chat and thread parts.
func ParseKey(s string) (chatID int64, threadID int, err error) {
	chatPart := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		chatPart = s[:i]
		threadID, err = strconv.Atoi(s[i+1:])
		if err != nil {
			return 0, 0, err
		}
	}
	chatID, err = strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return chatID, threadID, nil
}

// Job is one scheduled recurring delivery.
type Job struct {
	DestChat   int64
	DestThread int // forum topic qualifier (0 if none)

	SourceChat      int64
	SourceMessageID int

	IntervalMinutes int

	// NextRunAt is always a point in time once the job exists.
	NextRunAt time.Time

	// DisplayLabel is the destination's name, resolved at creation time
	// and not re-resolved.
	DisplayLabel string
}

func (j Job) Key() Key { return MakeKey(j.DestChat, j.DestThread) }

func (j Job) Interval() time.Duration {
	return time.Duration(j.IntervalMinutes) * time.Minute
}

// Equal compares jobs field by field; timestamps compare by instant, not
// by wall-clock representation.
func (j Job) Equal(o Job) bool {
	return j.DestChat == o.DestChat &&
		j.DestThread == o.DestThread &&
		j.SourceChat == o.SourceChat &&
		j.SourceMessageID == o.SourceMessageID &&
		j.IntervalMinutes == o.IntervalMinutes &&
		j.NextRunAt.Equal(o.NextRunAt) &&
		j.DisplayLabel == o.DisplayLabel
}
