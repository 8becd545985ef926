package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unclebandit/mailcampaign/internal/ai"
	"github.com/unclebandit/mailcampaign/internal/mail"
	"github.com/unclebandit/mailcampaign/internal/model"
)

type fakeGenerator struct {
	failFor  map[string]bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	hold     time.Duration
}

func (g *fakeGenerator) Generate(ctx context.Context, req ai.Request) (ai.Draft, error) {
	g.calls.Add(1)
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if g.hold > 0 {
		time.Sleep(g.hold)
	}
	for email := range g.failFor {
		if strings.Contains(req.UserPrompt, email) {
			return ai.Draft{}, errors.New("upstream 500")
		}
	}
	return ai.Draft{Subject: "Hello", Body: "Body for " + firstLine(req.UserPrompt)}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type fakeTransport struct {
	mu        sync.Mutex
	verifyErr error
	failFor   map[string]bool
	sent      []string
	verified  int
	closed    int
}

func (t *fakeTransport) Verify(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.verified++
	return t.verifyErr
}

func (t *fakeTransport) Send(ctx context.Context, m mail.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failFor[m.To] {
		return errors.New("550 rejected")
	}
	t.sent = append(t.sent, m.To)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

type fakeFactory struct {
	transports []*fakeTransport
	next       func() *fakeTransport
}

func (f *fakeFactory) New(s mail.Settings) (mail.Transport, error) {
	t := &fakeTransport{}
	if f.next != nil {
		t = f.next()
	}
	f.transports = append(f.transports, t)
	return t, nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, x := range s.delays {
		if x == d {
			n++
		}
	}
	return n
}

func contactsN(n int) []model.ContactRecord {
	out := make([]model.ContactRecord, n)
	for i := range out {
		email := fmt.Sprintf("person%02d@example.com", i)
		out[i] = model.ContactRecord{
			Line:    i + 2,
			Columns: []string{"email", "name"},
			Raw:     map[string]string{"email": email, "name": fmt.Sprintf("Person %d", i)},
			Email:   email,
			Name:    fmt.Sprintf("Person %d", i),
		}
	}
	return out
}
