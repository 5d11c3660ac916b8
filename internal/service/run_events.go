package service

import (
	"sync"
	"time"
)

// RunEvent 是运行状态变更的通知载荷，经 WebSocket 推送给订阅者。
type RunEvent struct {
	RunID     string    `json:"runId"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunEventHub 维护按运行 ID 划分的订阅者集合。
// 广播是尽力而为的：订阅者消费过慢时丢弃事件，不阻塞状态迁移。
type RunEventHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan RunEvent]struct{}
}

// NewRunEventHub 创建一个新的事件中心。
func NewRunEventHub() *RunEventHub {
	return &RunEventHub{subs: make(map[string]map[chan RunEvent]struct{})}
}

// Subscribe 订阅某个运行的状态事件，返回事件通道和取消函数。
func (h *RunEventHub) Subscribe(runID string) (<-chan RunEvent, func()) {
	ch := make(chan RunEvent, 8)
	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan RunEvent]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[runID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, runID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish 向某个运行的全部订阅者广播事件。
func (h *RunEventHub) Publish(evt RunEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[evt.RunID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
