package state

import (
	"sync"
)

type EventType int

const (
	EventUnknown EventType = iota
	BridgeLock
	BridgeUnlock
	BridgeMint
	BridgeBurn
	InvestmentQueued
	WithdrawalQueued
	QueueSettled
)

func (e EventType) String() string {
	return [...]string{"EventUnknown", "BridgeLock", "BridgeUnlock", "BridgeMint", "BridgeBurn", "InvestmentQueued", "WithdrawalQueued", "QueueSettled"}[e]
}

type EventBus struct {
	subscribers map[string][]chan interface{}
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan interface{}),
	}
}

func (eb *EventBus) Subscribe(eventType EventType, ch chan interface{}) {
	if ch == nil {
		panic("channel == nil")
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType.String()] = append(eb.subscribers[eventType.String()], ch)
}

// Publish delivers to every subscriber that can receive right away, slow or
// closed subscribers are dropped from the list.
func (eb *EventBus) Publish(eventType EventType, data interface{}) {
	eb.mu.RLock()
	subscribers, ok := eb.subscribers[eventType.String()]
	if !ok {
		eb.mu.RUnlock()
		return
	}
	originLen := len(subscribers)
	removeIndexes := make(map[int]bool)
	for i := 0; i < originLen; i++ {
		ch := subscribers[i]
		select {
		case ch <- data:
			// Success
		default:
			removeIndexes[i] = true
		}
	}
	eb.mu.RUnlock()

	if len(removeIndexes) > 0 {
		eb.mu.Lock()
		if originLen == len(eb.subscribers[eventType.String()]) {
			var newSubscribers []chan interface{}
			for index, ch := range eb.subscribers[eventType.String()] {
				if _, is := removeIndexes[index]; !is {
					newSubscribers = append(newSubscribers, ch)
				}
			}
			eb.subscribers[eventType.String()] = newSubscribers
		}
		eb.mu.Unlock()
	}
}

func (eb *EventBus) Unsubscribe(eventType EventType, ch chan interface{}) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	subscribers := eb.subscribers[eventType.String()]
	for i, subscriber := range subscribers {
		if subscriber == ch {
			eb.subscribers[eventType.String()] = append(subscribers[:i], subscribers[i+1:]...)
			break
		}
	}
}
