package credstore

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/learnhub/pkg/cryptox"
)

// Sealed encrypts values before they reach the wrapped Backend, so tokens at
// rest in a file, database or Redis are unreadable without the key.
type Sealed struct {
	inner  Backend
	sealer *cryptox.Sealer
}

func NewSealed(inner Backend, sealer *cryptox.Sealer) *Sealed {
	return &Sealed{inner: inner, sealer: sealer}
}

func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}

	plain, err := s.sealer.OpenString(v)
	if err != nil {
		return "", false, fmt.Errorf("open sealed %s: %w", key, err)
	}
	return plain, true, nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	sealed, err := s.sealer.SealString(value)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
