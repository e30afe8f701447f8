package core

import (
	"bytes"
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestRandomGeneratorRange(t *testing.T) {
	g := RandomGenerator{}
	for i := 0; i < 2000; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(code) != 4 {
			t.Fatalf("Expected 4 characters, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("Expected numeric code, got %q", code)
		}
		if n < 1000 || n > 9999 {
			t.Fatalf("Code %d out of range", n)
		}
	}
}

func TestRandomGeneratorReaderError(t *testing.T) {
	g := RandomGenerator{Reader: bytes.NewReader(nil)}
	if _, err := g.Generate(); err == nil {
		t.Error("Expected error from exhausted reader")
	}
}

func TestCredentialStateRotate(t *testing.T) {
	s := newTestCredentials("4821", "1234", "5678")

	if got := s.Current(); got != "4821" {
		t.Fatalf("Expected initial code 4821, got %s", got)
	}

	c2 := s.Rotate()
	if c2 != "1234" {
		t.Errorf("Expected rotated code 1234, got %s", c2)
	}
	for i := 0; i < 3; i++ {
		if got := s.Current(); got != c2 {
			t.Errorf("Current() = %s after rotation, want %s", got, c2)
		}
	}
	if s.Rotations() != 1 {
		t.Errorf("Expected 1 rotation, got %d", s.Rotations())
	}
}

func TestCredentialStateMatches(t *testing.T) {
	s := newTestCredentials("4821")

	tests := []struct {
		candidate string
		want      bool
	}{
		{"4821", true},
		{"0000", false},
		{"", false},
		{" 4821", false},
		{"04821", false},
		{"4821 ", false},
	}

	for _, tt := range tests {
		if got := s.Matches(tt.candidate); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.candidate, got, tt.want)
		}
	}
}

func TestCredentialStateConcurrentRotations(t *testing.T) {
	s, err := NewCredentialState(RandomGenerator{})
	if err != nil {
		t.Fatalf("NewCredentialState failed: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Rotate()
			_ = s.Current()
		}()
	}
	wg.Wait()
	close(results)

	if s.Rotations() != n {
		t.Errorf("Expected %d rotations, got %d", n, s.Rotations())
	}
	for code := range results {
		if len(code) != 4 {
			t.Errorf("Unexpected code %q", code)
		}
	}
}

func TestCredentialStateGeneratorFailure(t *testing.T) {
	gen := &sequenceGenerator{codes: []string{"4821"}}
	s, err := NewCredentialState(gen)
	if err != nil {
		t.Fatalf("NewCredentialState failed: %v", err)
	}

	gen.err = errors.New("entropy exhausted")
	code := s.Rotate()
	n, err := strconv.Atoi(code)
	if err != nil || n < 1000 || n > 9999 {
		t.Errorf("Expected a valid code from fallback source, got %q", code)
	}
	if s.Current() != code {
		t.Errorf("Current() = %s, want %s", s.Current(), code)
	}

	if _, err := NewCredentialState(&sequenceGenerator{err: errors.New("boom")}); err == nil {
		t.Error("Expected error when the initial code cannot be generated")
	}
}
