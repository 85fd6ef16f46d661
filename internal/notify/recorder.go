package notify

import (
	"context"
	"sync"
)

// Message записанное уведомление
type Message struct {
	To      Recipient
	Subject string
	Body    string
}

// Event записанное событие
type Event struct {
	Name    string
	Payload any
}

// Recorder запоминает уведомления и события, используется в тестах.
// Если задан Err, все вызовы возвращают его после записи.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	events   []Event
	Err      error
}

func (r *Recorder) Notify(_ context.Context, to Recipient, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{To: to, Subject: subject, Body: body})
	return r.Err
}

func (r *Recorder) Emit(_ context.Context, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: event, Payload: payload})
	return r.Err
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventNames имена событий в порядке записи
func (r *Recorder) EventNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, e := range r.events {
		names = append(names, e.Name)
	}
	return names
}
