package epayrolltest

import (
	"context"
	"sync"
	"time"

	"hrpayroll/internal/domain/epayroll"
)

type Outcome struct {
	Reply epayroll.Reply
	Err   error
}

func Accept() Outcome {
	return Outcome{Reply: epayroll.Reply{Status: epayroll.TransmissionStatusAccepted, Code: "00", Message: "Processed"}}
}

func Reject(code, message string) Outcome {
	return Outcome{Reply: epayroll.Reply{Status: epayroll.TransmissionStatusRejected, Code: code, Message: message}}
}

func Fail(err error) Outcome {
	return Outcome{Err: err}
}

// Authority replays scripted outcomes in order, then falls back to Default.
type Authority struct {
	mu          sync.Mutex
	script      []Outcome
	submissions []epayroll.Submission
	Default     Outcome
}

func NewAuthority(defaultOutcome Outcome) *Authority {
	return &Authority{Default: defaultOutcome}
}

func (a *Authority) Script(outcomes ...Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = append(a.script, outcomes...)
}

func (a *Authority) Submit(ctx context.Context, sub epayroll.Submission) (epayroll.Reply, error) {
	a.mu.Lock()
	a.submissions = append(a.submissions, sub)
	out := a.Default
	if len(a.script) > 0 {
		out = a.script[0]
		a.script = a.script[1:]
	}
	a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return epayroll.Reply{}, err
	}
	return out.Reply, out.Err
}

func (a *Authority) Submissions() []epayroll.Submission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]epayroll.Submission(nil), a.submissions...)
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ epayroll.Authority = (*Authority)(nil)
