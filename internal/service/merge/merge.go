package merge

import (
	"context"
	"fmt"

	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/common"
)

// Program is the configuration merge tool.
const Program = "sysmerge"

// Merger invokes sysmerge.
type Merger struct {
	runner common.Runner
}

// NewMerger runs sysmerge through runner.
func NewMerger(runner common.Runner) *Merger {
	return &Merger{runner: runner}
}

// Merge runs sysmerge interactively on the operator's terminal.
func (m *Merger) Merge(ctx context.Context) error {
	logger.Info(ctx, "Running sysmerge")

	if err := m.runner.Run(ctx, Program); err != nil {
		return fmt.Errorf("sysmerge: %w", err)
	}

	return nil
}
