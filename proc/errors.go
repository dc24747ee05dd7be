package proc

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery             = errors.New("query is empty")
	ErrNoResults              = errors.New("no tracks found")
	ErrNoActiveQueue          = errors.New("no active queue for this guild")
	ErrInsufficientItems      = errors.New("not enough items in the queue")
	ErrUnknownGenre           = errors.New("unknown autoplay genre")
	ErrVoiceTargetUnavailable = errors.New("voice channel is unavailable")
)

// ResolveError marks an infrastructure-level failure reported by the audio
// node, as opposed to a lookup that simply found nothing.
type ResolveError struct {
	Message  string
	Severity string
}

func (e *ResolveError) Error() string {
	if e.Severity != "" {
		return fmt.Sprintf("track load failed (%s): %s", e.Severity, e.Message)
	}
	return "track load failed: " + e.Message
}
