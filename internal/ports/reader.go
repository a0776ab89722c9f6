package ports

import (
	"context"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

type EventReader interface {
	Start(ctx context.Context) (<-chan *domain.Event, <-chan error)
	Stop() error
}

type EventParser interface {
	Parse(line string) (*domain.Event, error)
	Format() string
}
