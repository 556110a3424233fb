package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/lysyi3m/tube-digest/app/media"
)

// Strictness is the content-safety threshold sent with a request.
type Strictness int

const (
	StrictnessDefault Strictness = iota
	StrictnessMinimum
)

func (s Strictness) String() string {
	switch s {
	case StrictnessDefault:
		return "default"
	case StrictnessMinimum:
		return "minimum"
	default:
		return fmt.Sprintf("strictness(%d)", int(s))
	}
}

// Request carries either an audio payload or a text payload, never both.
type Request struct {
	Audio       *media.Audio
	Text        string
	Instruction string
	Strictness  Strictness
}

// Capability is a generative model that turns a payload and an
// instruction into text.
type Capability interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Stager is implemented by capabilities that can upload an audio payload
// once and reuse it across requests. The staged audio replaces the
// original in every request; release frees it after the last one.
type Stager interface {
	Stage(ctx context.Context, audio *media.Audio) (staged *media.Audio, release func(), err error)
}

// ErrRejected is returned by a Capability when the content filter
// refused the request.
var ErrRejected = errors.New("content rejected by safety filter")

type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether a capability error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRejected) || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isRetryableStatus(statusErr.StatusCode)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var errno syscall.Errno
		if errors.As(opErr.Err, &errno) {
			return errno == syscall.ECONNREFUSED ||
				errno == syscall.ECONNRESET ||
				errno == syscall.ETIMEDOUT
		}
		return opErr.Timeout()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func isRetryableStatus(status int) bool {
	return status == 408 || status == 429 || (status >= 500 && status <= 599)
}
