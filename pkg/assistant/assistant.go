// Package assistant is the chat helper of the IOTRAC client. Questions go
// to the backend's /ai/query endpoint; when it is unreachable or answers
// with anything unexpected, a local keyword responder answers instead.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/iotrac/pkg/idx"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
)

var ErrEmptyQuery = errors.New("assistant: empty question")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source records who produced an assistant reply.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

type Message struct {
	ID     idx.ID    `json:"id"`
	Role   Role      `json:"role"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
	Source Source    `json:"source,omitempty"`
}

// Doer is the part of apiclient.Client the assistant uses.
type Doer interface {
	Post(ctx context.Context, path string, body, out any) error
}

type queryResponse struct {
	Success  bool `json:"success"`
	Response *struct {
		Message string `json:"message"`
	} `json:"response"`
}

type Assistant struct {
	client Doer
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	history []Message
}

type Option func(*Assistant)

func WithLogger(l *slog.Logger) Option      { return func(a *Assistant) { a.logger = l } }
func WithClock(now func() time.Time) Option { return func(a *Assistant) { a.now = now } }

// New returns an assistant whose history starts with the greeting.
func New(client Doer, opts ...Option) *Assistant {
	a := &Assistant{client: client, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = slogx.OrDefault(a.logger).With("component", "assistant")
	a.history = []Message{a.message(RoleAssistant, Greeting, SourceLocal)}
	return a
}

// Ask records the question, gets a reply and records it. It only fails for
// an empty question: remote failures fall back to the local responder.
func (a *Assistant) Ask(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyQuery
	}

	a.append(a.message(RoleUser, text, ""))

	reply, src := a.remote(ctx, text), SourceRemote
	if reply == "" {
		reply, src = LocalReply(text), SourceLocal
	}

	msg := a.message(RoleAssistant, reply, src)
	a.append(msg)
	return msg, nil
}

func (a *Assistant) remote(ctx context.Context, text string) string {
	if a.client == nil {
		return ""
	}

	var resp queryResponse
	if err := a.client.Post(ctx, "/ai/query", map[string]string{"query": text}, &resp); err != nil {
		a.logger.DebugContext(ctx, "remote assistant unavailable, answering locally", "error", err.Error())
		return ""
	}
	if !resp.Success || resp.Response == nil {
		return ""
	}
	return strings.TrimSpace(resp.Response.Message)
}

// History returns the conversation so far, oldest first.
func (a *Assistant) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.history...)
}

// Reset drops everything but a fresh greeting.
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = []Message{a.message(RoleAssistant, Greeting, SourceLocal)}
}

func (a *Assistant) append(m Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
}

func (a *Assistant) message(role Role, text string, src Source) Message {
	at := a.now()
	return Message{ID: idx.NewAt(at), Role: role, Text: text, At: at, Source: src}
}
