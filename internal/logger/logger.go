// Package logger builds the process zap logger.
package logger

import "go.uber.org/zap"

// New returns a production JSON logger, or a human-readable one when dev is set.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
