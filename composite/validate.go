package composite

import (
	"fmt"
	"math"

	"multicam/models"
)

// contiguityTolerance is the float slack allowed between adjacent segments.
const contiguityTolerance = 1e-9

// ValidatePlan checks that the plan's segments are valid, sequentially
// indexed and cover [0, TotalDuration) exactly once, and that every
// transition sits on a cut.
func ValidatePlan(plan *models.AssemblyPlan) error {
	if plan == nil {
		return fmt.Errorf("plan cannot be nil")
	}
	if len(plan.Segments) == 0 {
		return fmt.Errorf("segment list is empty")
	}

	// Validate each segment individually
	for i := range plan.Segments {
		if err := plan.Segments[i].Validate(); err != nil {
			return fmt.Errorf("segment %d is invalid: %w", i, err)
		}
	}

	// Check for sequential indexes
	for i, seg := range plan.Segments {
		if seg.Index != i {
			return fmt.Errorf("segment %d has incorrect index: expected %d, got %d", i, i, seg.Index)
		}
	}

	if first := plan.Segments[0]; math.Abs(first.Offset) > contiguityTolerance {
		return fmt.Errorf("first segment starts at %.3f instead of 0", first.Offset)
	}

	// Check for gaps and overlaps
	for i := 0; i < len(plan.Segments)-1; i++ {
		currentEnd := plan.Segments[i].End()
		nextStart := plan.Segments[i+1].Offset

		if currentEnd > nextStart+contiguityTolerance {
			return fmt.Errorf("segments %d and %d overlap: segment %d ends at %.3f, segment %d starts at %.3f",
				i, i+1, i, currentEnd, i+1, nextStart)
		}
		if nextStart > currentEnd+contiguityTolerance {
			return fmt.Errorf("gap between segments %d and %d: segment %d ends at %.3f, segment %d starts at %.3f",
				i, i+1, i, currentEnd, i+1, nextStart)
		}
	}

	last := plan.Segments[len(plan.Segments)-1]
	if math.Abs(last.End()-plan.TotalDuration) > contiguityTolerance {
		return fmt.Errorf("segments end at %.3f but the plan lasts %.3f", last.End(), plan.TotalDuration)
	}

	for i, tr := range plan.Transitions {
		if tr.To != tr.From+1 || tr.From < 0 || tr.To >= len(plan.Segments) {
			return fmt.Errorf("transition %d joins non-adjacent segments %d and %d", i, tr.From, tr.To)
		}
		cut := plan.Segments[tr.From].End()
		if math.Abs(tr.Start+tr.Duration/2-cut) > contiguityTolerance {
			return fmt.Errorf("transition %d is not centred on the cut at %.3f", i, cut)
		}
	}

	return nil
}
