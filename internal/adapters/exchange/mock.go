package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/mindshift/mindshift/internal/domain"
)

// Mock is a deterministic exchange client for local mode and tests.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Exchange(ctx context.Context, history []domain.Message) (domain.Message, error) {
	last := ""
	if len(history) > 0 {
		last = history[len(history)-1].Text
	}
	return domain.Message{
		Text:      fmt.Sprintf("That sounds difficult. You said %q. What thinking patterns do you notice at play?", last),
		Sender:    domain.SenderAgent,
		CreatedAt: time.Now(),
	}, nil
}
