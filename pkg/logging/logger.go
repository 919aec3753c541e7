package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process-wide zap logger. Local environments get the
// human-readable development encoder; everything else logs JSON.
func NewLogger(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error
	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
