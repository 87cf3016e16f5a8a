package mqtt

import (
	"errors"
	"fmt"
)

// Kind classifies a publish failure.
type Kind int

const (
	KindUnreachable Kind = iota
	KindAuthFailed
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuthFailed:
		return "auth_failed"
	case KindTimeout:
		return "timeout"
	default:
		return "unreachable"
	}
}

var (
	ErrUnreachable = errors.New("broker unreachable")
	ErrAuthFailed  = errors.New("broker rejected credentials")
	ErrTimeout     = errors.New("publish timed out")
)

// PublishError reports a message that could not be delivered to the broker.
type PublishError struct {
	Kind      Kind
	Topic     string
	Published int // messages of the batch delivered before the failure
	Err       error
}

func (e *PublishError) Error() string {
	msg := "mqtt publish " + e.Kind.String()
	if e.Topic != "" {
		msg += fmt.Sprintf(" on %s", e.Topic)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() error { return e.Err }

func (e *PublishError) Is(target error) bool {
	switch e.Kind {
	case KindAuthFailed:
		return target == ErrAuthFailed
	case KindTimeout:
		return target == ErrTimeout
	default:
		return target == ErrUnreachable
	}
}

// PublishedCount exposes how many messages of the batch were delivered.
func (e *PublishError) PublishedCount() int { return e.Published }
