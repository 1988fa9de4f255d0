package scheduler

import (
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_target.go -package=mocks github.com/mattjoyce/gwiz/internal/scheduler Target

// Target is the part of the dispatch context the scheduler drives.
type Target interface {
	Enqueue(cmd gcode.Command, pos queue.Position) error
	Outstanding(cmd gcode.Command) int
	Running() bool
}
