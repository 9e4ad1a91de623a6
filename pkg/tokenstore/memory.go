package tokenstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It loses everything on exit.
type Memory struct {
	mu     sync.RWMutex
	kv     map[string]string
	closed bool
}

func NewMemory() *Memory {
	return &Memory{kv: make(map[string]string)}
}

func (m *Memory) Save(_ context.Context, c Credentials) error {
	kv, err := Encode(c)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.kv = kv
	return nil
}

func (m *Memory) Load(_ context.Context) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Credentials{}, ErrClosed
	}
	return Decode(m.kv)
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	clear(m.kv)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
