package engine

import (
	"sync"

	"github.com/jarnaez728/swimsync/internal/record"
)

// notifier delivers per-kind change signals to registered observers. There
// is no global bus: observers register on the engine and receive a signal
// after a committed local mutation (local- or remote-originated) touched
// their kind. Delivery is coalescing — if an observer hasn't consumed the
// previous signal the new one is dropped, so a slow observer can never
// block the receiver.
type notifier struct {
	mu   sync.Mutex
	subs map[record.Kind][]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[record.Kind][]chan struct{})}
}

// subscribe registers an observer for one record kind. The returned cancel
// function unregisters it and closes the channel.
func (n *notifier) subscribe(kind record.Kind) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[kind] = append(n.subs[kind], ch)
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		chans := n.subs[kind]
		for i, c := range chans {
			if c == ch {
				n.subs[kind] = append(chans[:i], chans[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// notify signals every observer of kind. Never blocks.
func (n *notifier) notify(kind record.Kind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[kind] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
