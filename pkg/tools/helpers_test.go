package tools

import (
	"context"
	"errors"
	"sync"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/mail"
)

var errStorage = errors.New("connection refused")

// failingProducts fails every query.
type failingProducts struct{}

func (failingProducts) FindProducts(context.Context, domain.ProductFilter) ([]domain.Product, error) {
	return nil, errStorage
}

func (failingProducts) UpsertProducts(context.Context, []domain.Product) (int, error) {
	return 0, errStorage
}

// recordingSender records sent mail and optionally fails.
type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mail.Message(nil), s.sent...)
}
