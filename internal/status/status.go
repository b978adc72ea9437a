package status

import (
	"sync"

	"github.com/olebedev/emitter"
)

type Status string

const (
	Online  Status = "ONLINE"
	Offline Status = "OFFLINE"
	Unknown Status = "UNKNOWN"
)

type Detail string

const (
	None               Detail = "NONE"
	ConfigurationError Detail = "CONFIGURATION_ERROR"
	CommunicationError Detail = "COMMUNICATION_ERROR"
)

type Info struct {
	Status  Status `json:"status"`
	Detail  Detail `json:"detail"`
	Message string `json:"message,omitempty"`
}

func OnlineInfo() Info {
	return Info{Status: Online, Detail: None}
}

func UnknownInfo() Info {
	return Info{Status: Unknown, Detail: None}
}

func OfflineInfo(detail Detail, message string) Info {
	return Info{Status: Offline, Detail: detail, Message: message}
}

const topicPrefix = "status:"

// Tracker holds the current status of every thing and emits a change event
// whenever one of them moves.
//
// Handlers run synchronously in emit order and must not call Update.
type Tracker struct {
	// emitMu keeps emitted order equal to stored order.
	emitMu sync.Mutex

	mu    sync.RWMutex
	infos map[string]Info

	events *emitter.Emitter
}

func NewTracker() *Tracker {
	e := &emitter.Emitter{}
	e.Use("*", emitter.Void, emitter.Sync)

	return &Tracker{infos: map[string]Info{}, events: e}
}

// Update stores info for uid. Returns false when nothing changed.
func (t *Tracker) Update(uid string, info Info) bool {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	prev, found := t.infos[uid]
	if found && prev == info {
		t.mu.Unlock()
		return false
	}
	t.infos[uid] = info
	t.mu.Unlock()

	<-t.events.Emit(topicPrefix+uid, uid, info)
	return true
}

func (t *Tracker) Get(uid string) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, found := t.infos[uid]
	return info, found
}

func (t *Tracker) All() map[string]Info {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Info, len(t.infos))
	for uid, info := range t.infos {
		out[uid] = info
	}
	return out
}

func (t *Tracker) Remove(uid string) {
	t.mu.Lock()
	delete(t.infos, uid)
	t.mu.Unlock()
}

func (t *Tracker) OnChange(uid string, h func(Info)) {
	t.events.On(topicPrefix+uid, func(e *emitter.Event) {
		if info, ok := e.Args[1].(Info); ok {
			h(info)
		}
	})
}

func (t *Tracker) OnAny(h func(uid string, info Info)) {
	t.events.On(topicPrefix+"*", func(e *emitter.Event) {
		uid, _ := e.Args[0].(string)
		if info, ok := e.Args[1].(Info); ok {
			h(uid, info)
		}
	})
}
