package batch

import "sync"

// Observer receives task events on a dispatcher goroutine, never on the
// worker. Events arrive in publish order.
type Observer interface {
	OnProgress(Snapshot)
	OnComplete(Summary)
	OnError(error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(Snapshot)
	Complete func(Summary)
	Error    func(error)
}

func (o ObserverFuncs) OnProgress(s Snapshot) {
	if o.Progress != nil {
		o.Progress(s)
	}
}

func (o ObserverFuncs) OnComplete(s Summary) {
	if o.Complete != nil {
		o.Complete(s)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

type multiObserver []Observer

// Observers fans every event out to each non-nil observer in order.
func Observers(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) OnProgress(s Snapshot) {
	for _, o := range m {
		o.OnProgress(s)
	}
}

func (m multiObserver) OnComplete(s Summary) {
	for _, o := range m {
		o.OnComplete(s)
	}
}

func (m multiObserver) OnError(err error) {
	for _, o := range m {
		o.OnError(err)
	}
}

// notifier queues events without bound so the worker never waits on a slow
// observer and no event is dropped.
type notifier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func(Observer)
	closed   bool
	observer Observer
	done     chan struct{}
}

func newNotifier(observer Observer) *notifier {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	n := &notifier{
		observer: observer,
		done:     make(chan struct{}),
	}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) publish(event func(Observer)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.queue = append(n.queue, event)
	n.cond.Signal()
}

// close stops accepting events. Queued events are still delivered; done is
// closed after the last one.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		pending := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		for _, event := range pending {
			event(n.observer)
		}
		if closed && len(pending) == 0 {
			return
		}
	}
}
