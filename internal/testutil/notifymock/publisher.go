package notifymock

import (
	"context"
	"sync"

	"coop-ledger/internal/domain/notify"
)

var _ notify.Publisher = (*Publisher)(nil)

type Sent struct {
	MemberID string
	Event    string
	Payload  map[string]any
}

// Publisher records every notification; NotifyFn, when set, is called too.
type Publisher struct {
	NotifyFn func(ctx context.Context, memberID, event string, payload map[string]any)

	mu   sync.Mutex
	sent []Sent
}

func (p *Publisher) Notify(ctx context.Context, memberID, event string, payload map[string]any) {
	p.mu.Lock()
	p.sent = append(p.sent, Sent{MemberID: memberID, Event: event, Payload: payload})
	p.mu.Unlock()
	if p.NotifyFn != nil {
		p.NotifyFn(ctx, memberID, event, payload)
	}
}

func (p *Publisher) Sent() []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Sent(nil), p.sent...)
}

// Count returns how many notifications named event were sent.
func (p *Publisher) Count(event string) int {
	n := 0
	for _, s := range p.Sent() {
		if s.Event == event {
			n++
		}
	}
	return n
}
