package retry

import (
	"context"
)

// NoRetryStrategy executes operations once
type NoRetryStrategy struct{}

func NewNoRetryStrategy() *NoRetryStrategy {
	return &NoRetryStrategy{}
}

// Execute runs the operation once, honoring an already cancelled context
func (s *NoRetryStrategy) Execute(ctx context.Context, operation Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return operation()
}

func (s *NoRetryStrategy) Name() string {
	return "NoRetry"
}
