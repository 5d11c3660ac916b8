package service

import (
	"testing"
	"time"

	"extractlab-go/internal/model"
)

func TestRunEventHubDelivery(t *testing.T) {
	hub := NewRunEventHub()

	ch, cancel := hub.Subscribe("run-1")
	defer cancel()
	other, cancelOther := hub.Subscribe("run-2")
	defer cancelOther()

	hub.Publish(RunEvent{RunID: "run-1", Status: model.RunStatusRunning, Timestamp: time.Now()})

	select {
	case evt := <-ch:
		if evt.Status != model.RunStatusRunning {
			t.Fatalf("事件状态不符: %s", evt.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("订阅者未收到事件")
	}

	// 其他运行的订阅者不受影响
	select {
	case evt := <-other:
		t.Fatalf("run-2 订阅者不应收到事件: %+v", evt)
	default:
	}
}

func TestRunEventHubDropsWhenSubscriberSlow(t *testing.T) {
	hub := NewRunEventHub()
	ch, cancel := hub.Subscribe("run-1")
	defer cancel()

	// 超出缓冲的事件被丢弃而非阻塞
	for i := 0; i < 20; i++ {
		hub.Publish(RunEvent{RunID: "run-1", Status: model.RunStatusRunning, Timestamp: time.Now()})
	}
	if got := len(ch); got != 8 {
		t.Fatalf("缓冲应满 8 条，实际 %d", got)
	}
}

func TestRunEventHubCancelStopsDelivery(t *testing.T) {
	hub := NewRunEventHub()
	ch, cancel := hub.Subscribe("run-1")
	cancel()

	// 取消后发布不会 panic，通道已关闭
	hub.Publish(RunEvent{RunID: "run-1", Status: model.RunStatusFailed, Timestamp: time.Now()})
	if _, ok := <-ch; ok {
		t.Fatal("取消后的通道不应再有事件")
	}
}
