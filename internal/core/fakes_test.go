package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

type sequenceGenerator struct {
	mu    sync.Mutex
	codes []string
	next  int
	err   error
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	code := g.codes[g.next%len(g.codes)]
	g.next++
	return code, nil
}

func newTestCredentials(codes ...string) *CredentialState {
	s, err := NewCredentialState(&sequenceGenerator{codes: codes})
	if err != nil {
		panic(err)
	}
	return s
}

type fakePrimary struct {
	mu    sync.Mutex
	calls []string
	fn    func(path string, timeout time.Duration) error
}

func (f *fakePrimary) Run(ctx context.Context, path string, timeout time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if f.fn == nil {
		return nil
	}
	return f.fn(path, timeout)
}

func (f *fakePrimary) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeFallback struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeFallback) Launch(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	return f.err
}

func (f *fakeFallback) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errPrimaryExit = errors.New("exit status 1")

type memoryStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	n       int
	saveErr error
	saves   int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: make(map[string][]byte)}
}

func (m *memoryStorage) Save(ctx context.Context, p Payload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil && m.saves > 1 {
		return "", m.saveErr
	}
	rc, err := p.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	m.n++
	path := fmt.Sprintf("mem/job_%d.pdf", m.n)
	m.files[path] = data
	return path, nil
}

func (m *memoryStorage) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
