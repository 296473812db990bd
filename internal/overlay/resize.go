package overlay

import "sync"

// ResizeNotifier delivers rendered-size changes of the displayed image.
type ResizeNotifier interface {
	// Subscribe registers fn and returns a function that removes it.
	Subscribe(fn func(w, h int)) (unsubscribe func())
}

// ResizeFeed is an in-process ResizeNotifier fed by whoever observes the layout.
// Repeated notifications with an unchanged size are dropped. Deliveries are
// serialized, so subscribers see sizes in the order the feed recorded them.
// Callbacks must not call Notify or Subscribe on the same feed.
type ResizeFeed struct {
	deliverMu sync.Mutex // held across recording a size and delivering it

	mu     sync.Mutex
	nextID int
	subs   map[int]func(w, h int)
	width  int
	height int
}

// NewResizeFeed creates an empty feed.
func NewResizeFeed() *ResizeFeed {
	return &ResizeFeed{subs: make(map[int]func(w, h int))}
}

// Subscribe registers fn. When a size is already known fn is called with it immediately.
func (f *ResizeFeed) Subscribe(fn func(w, h int)) func() {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	w, h := f.width, f.height
	f.mu.Unlock()

	if w > 0 || h > 0 {
		fn(w, h)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Notify publishes a new rendered size to all subscribers.
func (f *ResizeFeed) Notify(w, h int) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	if w == f.width && h == f.height {
		f.mu.Unlock()
		return
	}
	f.width, f.height = w, h
	subs := make([]func(w, h int), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	// Callbacks run outside mu so they may take their own locks and unsubscribe.
	for _, fn := range subs {
		fn(w, h)
	}
}

// Size returns the last published size.
func (f *ResizeFeed) Size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width, f.height
}

// Subscribers returns the number of registered callbacks.
func (f *ResizeFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
