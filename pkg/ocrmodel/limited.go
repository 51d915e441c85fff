package ocrmodel

import (
	"context"

	"github.com/Caia-Tech/caia-ocr/pkg/ratelimit"
)

// Limited throttles calls to a wrapped model
type Limited struct {
	model   Model
	limiter *ratelimit.Limiter
}

// WithLimiter wraps model so every call first waits on limiter
func WithLimiter(model Model, limiter *ratelimit.Limiter) *Limited {
	return &Limited{model: model, limiter: limiter}
}

// Recognize waits for the limiter, then calls the wrapped model
func (l *Limited) Recognize(ctx context.Context, prompt string, image []byte) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	text, err := l.model.Recognize(ctx, prompt, image)
	if err != nil {
		l.limiter.RecordError()
		return "", err
	}
	l.limiter.RecordSuccess()
	return text, nil
}

// Stats reports the limiter state
func (l *Limited) Stats() ratelimit.Stats {
	return l.limiter.Stats()
}
