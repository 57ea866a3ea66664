// Package sse implements a Server-Sent Events broker that streams view
// session updates to browsers.
package sse

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

// Event types.
const (
	SelectionChanged = "selection.changed"
	WindowChanged    = "window.changed"
	DatasetReplaced  = "dataset.replaced"
	FrameUpdated     = "frame.updated"
	SessionClosed    = "session.closed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type topicEvent struct {
	topic string
	event Event
}

type subscription struct {
	topic string
	ch    chan []byte
}

// frameState tracks the frame.updated throttle of one topic.
type frameState struct {
	last    time.Time
	pending bool
}

// Broker manages SSE client connections grouped by topic (a view session id)
// and broadcasts events to the clients of one topic.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + frame throttle state). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	frameMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan subscription
	publishCh     chan topicEvent
	frameCh       chan string
	flushCh       chan string
	closeTopicCh  chan string
	countReqCh    chan countReq

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

type countReq struct {
	topic string // empty counts every client
	resp  chan int
}

// NewBroker creates a new SSE broker. frame.updated events of one topic are
// sent at most once per frameThrottle; the last one of a burst is delayed,
// not dropped.
func NewBroker(frameThrottle time.Duration) *Broker {
	if frameThrottle <= 0 {
		frameThrottle = 250 * time.Millisecond
	}

	b := &Broker{
		frameMin:      frameThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan subscription),
		publishCh:     make(chan topicEvent, 256),
		frameCh:       make(chan string, 256),
		flushCh:       make(chan string, 64),
		closeTopicCh:  make(chan string, 64),
		countReqCh:    make(chan countReq),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[string]map[chan []byte]struct{})
	frames := make(map[string]*frameState)

	broadcast := func(topic string, event Event) {
		payload, err := sonic.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients[topic] {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	sendFrame := func(topic string, fs *frameState) {
		fs.last = time.Now()
		fs.pending = false
		broadcast(topic, Event{Type: FrameUpdated, Data: map[string]string{"session": topic}})
	}

	for {
		select {
		case <-b.stopCh:
			for _, set := range clients {
				for ch := range set {
					close(ch)
				}
			}
			return

		case sub := <-b.subscribeCh:
			set, ok := clients[sub.topic]
			if !ok {
				set = make(map[chan []byte]struct{})
				clients[sub.topic] = set
			}
			set[sub.ch] = struct{}{}

		case sub := <-b.unsubscribeCh:
			if set, ok := clients[sub.topic]; ok {
				if _, ok := set[sub.ch]; ok {
					delete(set, sub.ch)
					close(sub.ch)
				}
				if len(set) == 0 {
					delete(clients, sub.topic)
				}
			}

		case te := <-b.publishCh:
			broadcast(te.topic, te.event)

		case topic := <-b.frameCh:
			fs, ok := frames[topic]
			if !ok {
				fs = &frameState{}
				frames[topic] = fs
			}
			wait := b.frameMin - time.Since(fs.last)
			switch {
			case wait <= 0:
				sendFrame(topic, fs)
			case !fs.pending:
				fs.pending = true
				time.AfterFunc(wait, func() {
					select {
					case b.flushCh <- topic:
					case <-b.stopped:
					}
				})
			}

		case topic := <-b.flushCh:
			if fs, ok := frames[topic]; ok && fs.pending {
				sendFrame(topic, fs)
			}

		case topic := <-b.closeTopicCh:
			broadcast(topic, Event{Type: SessionClosed, Data: map[string]string{"session": topic}})
			for ch := range clients[topic] {
				close(ch)
			}
			delete(clients, topic)
			delete(frames, topic)

		case req := <-b.countReqCh:
			if req.topic == "" {
				n := 0
				for _, set := range clients {
					n += len(set)
				}
				req.resp <- n
			} else {
				req.resp <- len(clients[req.topic])
			}
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client of topic and returns its channel.
func (b *Broker) Subscribe(topic string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{topic: topic, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(topic string, ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- subscription{topic: topic, ch: ch}:
	case <-b.stopped:
	}
}

// ClientCount returns the number of clients of topic, or of every topic when
// topic is empty.
func (b *Broker) ClientCount(topic string) int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- countReq{topic: topic, resp: resp}:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all clients of topic.
func (b *Broker) Publish(topic string, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- topicEvent{topic: topic, event: event}:
	case <-b.stopped:
	}
}

// PublishFrame announces a new frame of topic, throttled.
func (b *Broker) PublishFrame(topic string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.frameCh <- topic:
	case <-b.stopped:
	}
}

// CloseTopic sends session.closed to the clients of topic and disconnects
// them.
func (b *Broker) CloseTopic(topic string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.closeTopicCh <- topic:
	case <-b.stopped:
	}
}

// Handler returns the SSE endpoint for the topic chosen by topicOf. An empty
// topic answers 404.
func (b *Broker) Handler(topicOf func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := topicOf(r)
		if topic == "" {
			http.NotFound(w, r)
			return
		}
		b.serve(w, r, topic)
	}
}

func (b *Broker) serve(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(topic)
	defer b.Unsubscribe(topic, ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
