package shell

import (
	"sync"
	"time"
)

// ToastKind distinguishes success from error notifications.
type ToastKind int

const (
	ToastSuccess ToastKind = iota
	ToastError
)

// Toast is one transient notification.
type Toast struct {
	ID      uint64
	Kind    ToastKind
	Message string
	At      time.Time
}

const toastBuffer = 16

// Toasts collects notifications from any goroutine and hands them to the UI.
// It satisfies the session initializer's Notifier. When the UI falls behind,
// the oldest pending toast is dropped.
type Toasts struct {
	mu     sync.Mutex
	nextID uint64
	ch     chan Toast
	now    func() time.Time
}

// NewToasts returns an empty toast queue.
func NewToasts() *Toasts {
	return &Toasts{ch: make(chan Toast, toastBuffer), now: time.Now}
}

// Success queues a success toast.
func (t *Toasts) Success(msg string) { t.push(ToastSuccess, msg) }

// Error queues an error toast.
func (t *Toasts) Error(msg string) { t.push(ToastError, msg) }

func (t *Toasts) push(kind ToastKind, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	toast := Toast{ID: t.nextID, Kind: kind, Message: msg, At: t.now()}
	for {
		select {
		case t.ch <- toast:
			return
		default:
		}
		select {
		case <-t.ch:
		default:
		}
	}
}

// C delivers queued toasts in order.
func (t *Toasts) C() <-chan Toast {
	return t.ch
}

// Drain returns every queued toast without blocking.
func (t *Toasts) Drain() []Toast {
	var out []Toast
	for {
		select {
		case toast := <-t.ch:
			out = append(out, toast)
		default:
			return out
		}
	}
}
