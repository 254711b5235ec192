// Package sse streams dataset reloads and static map progress to browser
// clients as Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types published by the service.
const (
	TypeDatasetReloaded    = "dataset.reloaded"
	TypeStaticMapsStarted  = "static_maps.started"
	TypeStaticMapsProgress = "static_maps.progress"
	TypeStaticMapsFinished = "static_maps.finished"
)

// Event is one message for subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Progress is the payload of a static_maps.progress event.
type Progress struct {
	Run   string `json:"run"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

const (
	// DefaultProgressThrottle is the progress event interval used when none
	// is given.
	DefaultProgressThrottle = 500 * time.Millisecond

	// KeepAlive is the interval between comment frames on an idle stream.
	KeepAlive = 15 * time.Second

	historySize = 128
	clientQueue = 64
)

// frame is an encoded event with its sequence id.
type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

// Broker fans events out to subscribers. One goroutine owns the subscriber
// set, the replay history and the per-run progress clocks.
type Broker struct {
	throttle time.Duration

	subs     chan subscription
	unsubs   chan chan []byte
	events   chan Event
	progress chan Progress
	counts   chan chan int

	quit    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
}

// NewBroker starts a broker that sends at most one progress event per run
// every throttle. The last update of a run is never dropped.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = DefaultProgressThrottle
	}
	b := &Broker{
		throttle: throttle,
		subs:     make(chan subscription),
		unsubs:   make(chan chan []byte),
		events:   make(chan Event, 256),
		progress: make(chan Progress, 256),
		counts:   make(chan chan int),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func encode(id uint64, e Event) ([]byte, bool) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, false
	}
	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatUint(id, 10))
	buf.WriteString("\nevent: ")
	buf.WriteString(e.Type)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), true
}

func (b *Broker) loop() {
	defer close(b.done)

	clients := make(map[chan []byte]struct{})
	clocks := make(map[string]time.Time)
	var history []frame
	var seq uint64

	send := func(e Event) {
		raw, ok := encode(seq+1, e)
		if !ok {
			return
		}
		seq++
		history = append(history, frame{id: seq, raw: raw})
		if len(history) > historySize {
			history = history[len(history)-historySize:]
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client misses this frame
			}
		}
	}

	for {
		select {
		case <-b.quit:
			for ch := range clients {
				close(ch)
			}
			return

		case s := <-b.subs:
			clients[s.ch] = struct{}{}
			if s.lastID == 0 {
				continue
			}
			for _, f := range history {
				if f.id <= s.lastID {
					continue
				}
				select {
				case s.ch <- f.raw:
				default:
				}
			}

		case ch := <-b.unsubs:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.events:
			send(e)

		case p := <-b.progress:
			final := p.Done >= p.Total
			now := time.Now()
			if !final && now.Sub(clocks[p.Run]) < b.throttle {
				continue
			}
			if final {
				delete(clocks, p.Run)
			} else {
				clocks[p.Run] = now
			}
			send(Event{Type: TypeStaticMapsProgress, Data: p})

		case reply := <-b.counts:
			reply <- len(clients)
		}
	}
}

// Close stops the broker and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.stopped.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a client. Events newer than lastID that are still in
// the replay history are queued first; zero skips replay.
func (b *Broker) Subscribe(lastID uint64) chan []byte {
	ch := make(chan []byte, clientQueue)
	if b.stopped.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subs <- subscription{ch: ch, lastID: lastID}:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.stopped.Load() {
		return
	}
	select {
	case b.unsubs <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.stopped.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.counts <- reply:
	case <-b.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.done:
		return 0
	}
}

// Publish sends an event to every subscriber.
func (b *Broker) Publish(e Event) {
	if b.stopped.Load() {
		return
	}
	select {
	case b.events <- e:
	case <-b.done:
	}
}

// PublishProgress reports sampling progress for a run.
func (b *Broker) PublishProgress(run string, done, total int) {
	if b.stopped.Load() {
		return
	}
	select {
	case b.progress <- Progress{Run: run, Done: done, Total: total}:
	case <-b.done:
	}
}

// ServeHTTP streams events to one client (GET /events). A Last-Event-ID
// header resumes from the replay history.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	tick := time.NewTicker(KeepAlive)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
