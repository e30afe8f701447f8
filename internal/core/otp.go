package core

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	mathrand "math/rand"
	"strconv"
	"sync"

	"github.com/orrn/printconnect/internal/metrics"
)

const (
	otpMin = 1000
	otpMax = 9999
)

type Generator interface {
	Generate() (string, error)
}

// RandomGenerator draws codes uniformly from 1000..9999. A nil Reader
// means crypto/rand.
type RandomGenerator struct {
	Reader io.Reader
}

func (g RandomGenerator) Generate() (string, error) {
	reader := g.Reader
	if reader == nil {
		reader = rand.Reader
	}
	n, err := rand.Int(reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to draw otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// CredentialState owns the single currently valid one-time code.
type CredentialState struct {
	mu        sync.RWMutex
	current   string
	generator Generator
	rotations uint64
}

func NewCredentialState(generator Generator) (*CredentialState, error) {
	if generator == nil {
		generator = RandomGenerator{}
	}
	code, err := generator.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate initial otp: %w", err)
	}
	return &CredentialState{
		current:   code,
		generator: generator,
	}, nil
}

func (s *CredentialState) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Matches compares candidate with the current code character for character.
func (s *CredentialState) Matches(candidate string) bool {
	current := s.Current()
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(current)) == 1
}

// Rotate replaces the current code and returns the new one. Concurrent
// callers are serialized, so every call yields exactly one rotation.
func (s *CredentialState) Rotate() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.generator.Generate()
	if err != nil {
		// the authorization window must still close
		slog.Error("otp generator failed, using fallback source", "error", err)
		code = strconv.Itoa(otpMin + mathrand.Intn(otpMax-otpMin+1))
	}

	s.current = code
	s.rotations++
	metrics.OTPRotationsTotal.Inc()
	return code
}

func (s *CredentialState) Rotations() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rotations
}
