package sqlite

import "sync"

// notifier fans out change signals to Watch subscribers of one user.
type notifier struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[chan struct{}]struct{})}
}

func (n *notifier) subscribe(userID string) chan struct{} {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[chan struct{}]struct{})
	}
	n.subs[userID][ch] = struct{}{}
	return ch
}

func (n *notifier) unsubscribe(userID string, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs[userID], ch)
	if len(n.subs[userID]) == 0 {
		delete(n.subs, userID)
	}
}

// notify coalesces: a subscriber with a pending signal is not signalled twice.
func (n *notifier) notify(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
