// Package pipeline runs the replenishment stages individually or as a chain.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/replenishment/internal/shared"
)

// Stage names a runnable unit.
type Stage string

const (
	StageMovements  Stage = "movements"
	StageDemand     Stage = "demand"
	StageInTransit  Stage = "in-transit"
	StageQuantities Stage = "quantities"
	StageSchedule   Stage = "schedule"
	StagePipeline   Stage = "pipeline"
)

// Chain is the order of the full pipeline.
var Chain = []Stage{StageMovements, StageDemand, StageInTransit, StageQuantities, StageSchedule}

// dependsOn lists the chain steps whose writes a step reads. A step is not run
// when one of them failed or was not run.
var dependsOn = map[Stage][]Stage{
	StageDemand:     {StageMovements},
	StageQuantities: {StageDemand, StageInTransit},
	StageSchedule:   {StageQuantities},
}

func blockedBy(stage Stage, blocked map[Stage]bool) bool {
	for _, dep := range dependsOn[stage] {
		if blocked[dep] {
			return true
		}
	}
	return false
}

// Stages lists every accepted stage name.
func Stages() []Stage {
	return append(append([]Stage(nil), Chain...), StagePipeline)
}

// ParseStage validates a stage name.
func ParseStage(raw string) (Stage, error) {
	candidate := Stage(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range Stages() {
		if s == candidate {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown stage %q", shared.ErrValidation, raw)
}
