package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"
)

// Class is the retry classification of a transport error.
type Class int

const (
	Unknown Class = iota
	Transient
	Permanent
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// SMTP reply codes only count where a reply starts: at the beginning of a
// line or after a "prefix: " added by wrapping. A bare number elsewhere in
// the text ("after 550ms") is not a reply code.
const (
	replyStart = `(?:^|:\s+)`
	replyEnd   = `(?:[ -]|$)`
)

var (
	transientRe  = regexp.MustCompile(`(?im)(connection reset|connection refused|broken pipe|i/o timeout|timed? ?out|timeout|temporar(y|ily)|try again|\beof\b|` + replyStart + `(?:42[1-9]|45[0-2])` + replyEnd + `|\b4\.\d\.\d+\b|too many requests|service unavailable|bad gateway|gateway timeout)`)
	permanentRe  = regexp.MustCompile(`(?im)(` + replyStart + `55[0-4]` + replyEnd + `|\b5\.\d\.\d+\b|auth(entication)? failed|invalid recipient|mailbox unavailable|no such user|user unknown|address rejected|bad address|does not exist)`)
	badAddressRe = regexp.MustCompile(`(?im)(` + replyStart + `55[013]` + replyEnd + `|invalid recipient|mailbox unavailable|no such user|user unknown|address rejected|bad address)`)
)

// StatusError carries an HTTP status from a relay or API so callers can
// classify by code instead of text.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "unexpected status " + strconv.Itoa(e.Code)
	}
	return "unexpected status " + strconv.Itoa(e.Code) + ": " + e.Body
}

// PermanentError marks an error as not worth retrying regardless of text.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Classify decides whether err is worth another attempt. A cancelled send
// says nothing about the recipient, so cancellation is transient.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}
	if errors.Is(err, context.Canceled) {
		return Transient
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return Permanent
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 408 || se.Code == 425 || se.Code == 429 || se.Code >= 500:
			return Transient
		case se.Code >= 400:
			return Permanent
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Transient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient
	}

	msg := err.Error()
	if permanentRe.MatchString(msg) {
		return Permanent
	}
	if transientRe.MatchString(msg) {
		return Transient
	}
	return Unknown
}

// IsBadAddress reports a permanent failure caused by the recipient address.
func IsBadAddress(err error) bool {
	if err == nil {
		return false
	}
	return badAddressRe.MatchString(err.Error())
}

// Executor retries a single operation on transient errors with a doubling
// delay. The attempt counter lives only inside Do.
type Executor struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetry, if set, is called before each sleep.
	OnRetry func(attempt int, err error, wait time.Duration)

	sleep func(ctx context.Context, d time.Duration) error
}

func New(maxAttempts int, baseDelay time.Duration) *Executor {
	return &Executor{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: 30 * time.Second}
}

// Attempts is returned wrapped around the last error so callers can report
// how many tries were spent.
type Attempts struct {
	N   int
	Err error
}

func (a *Attempts) Error() string { return a.Err.Error() }
func (a *Attempts) Unwrap() error { return a.Err }

func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	max := e.MaxAttempts
	if max <= 0 {
		max = 3
	}
	sleep := e.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= max; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if Classify(err) != Transient || attempt == max || ctx.Err() != nil {
			return &Attempts{N: attempt, Err: err}
		}
		wait := e.Backoff(attempt)
		if e.OnRetry != nil {
			e.OnRetry(attempt, err, wait)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return &Attempts{N: attempt, Err: err}
		}
	}
	return &Attempts{N: max, Err: err}
}

// Backoff returns the wait after the given failed attempt (1-based):
// base, 2*base, 4*base, ... capped at MaxDelay.
func (e *Executor) Backoff(attempt int) time.Duration {
	d := e.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.MaxDelay > 0 && d > e.MaxDelay {
			return e.MaxDelay
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
