package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishanth10/supabase-traversaal/internal/metrics"
)

// EventType はセッション変更イベントの種別。
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventSignedOut      EventType = "SIGNED_OUT"
)

// subscriberBuffer は購読者ごとのチャネルバッファ。溢れたイベントは破棄する。
const subscriberBuffer = 8

// Event はセッション変更通知。
type Event struct {
	Type      EventType
	SessionID string
	UserID    string
	At        time.Time
}

// Events はセッションごとの変更通知を配信する。
// 配信は購読者の処理速度に左右されない（バッファが一杯の購読者には届かない）。
type Events struct {
	mu        sync.Mutex
	subs      map[string]map[string]chan Event
	listeners []func(Event)
	metrics   metrics.MetricsCollector
}

// NewEvents はEventsを生成する。
func NewEvents(mc metrics.MetricsCollector) *Events {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Events{
		subs:    make(map[string]map[string]chan Event),
		metrics: mc,
	}
}

// Subscribe は指定セッションの変更通知を購読する。
// 返される関数で購読を解除する。解除は何度呼んでもよく、解除後にチャネルは閉じられる。
func (e *Events) Subscribe(sessionID string) (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	e.mu.Lock()
	if e.subs[sessionID] == nil {
		e.subs[sessionID] = make(map[string]chan Event)
	}
	e.subs[sessionID][id] = ch
	e.mu.Unlock()
	e.metrics.SubscriberAdded()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs[sessionID], id)
			if len(e.subs[sessionID]) == 0 {
				delete(e.subs, sessionID)
			}
			close(ch)
			e.mu.Unlock()
			e.metrics.SubscriberRemoved()
		})
	}
	return ch, unsubscribe
}

// AddListener は全セッションのイベントを同期的に受け取る関数を登録する。
func (e *Events) AddListener(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Publish はイベントを配信する。
func (e *Events) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e.metrics.RecordAuthEvent(string(ev.Type))

	e.mu.Lock()
	for _, ch := range e.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
	listeners := make([]func(Event), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// SubscriberCount は指定セッションの購読者数を返す。
func (e *Events) SubscriberCount(sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[sessionID])
}
