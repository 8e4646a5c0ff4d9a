package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// Init builds the process logger and installs it as zap's global, so packages
// can use zap.L() without threading a logger through every constructor.
func Init(environment string) error {
	var (
		logger *zap.Logger
		err    error
	)
	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return fmt.Errorf("build logger -> %w", err)
	}
	zap.ReplaceGlobals(logger)
	return nil
}
