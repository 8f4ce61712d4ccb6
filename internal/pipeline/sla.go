package pipeline

import (
	"fmt"
	"math"
	"time"
)

// SLAStatus is a read-time view of how long a proposal has sat in its stage.
// It is recomputed on every request and never persisted.
type SLAStatus struct {
	SLAMinutes       int       `json:"slaMinutes"`
	EnteredAt        time.Time `json:"enteredAt"`
	ElapsedMinutes   int       `json:"elapsedMinutes"`
	RemainingMinutes int       `json:"remainingMinutes"`
	Overdue          bool      `json:"overdue"`
	Label            string    `json:"label"`
}

// ResolveEnteredAt picks when the proposal entered its current stage: the stored timestamp,
// else the latest stage-change history entry, else the proposal's creation time.
func ResolveEnteredAt(stageEnteredAt, lastStageChange *time.Time, createdAt time.Time) time.Time {
	if stageEnteredAt != nil && !stageEnteredAt.IsZero() {
		return *stageEnteredAt
	}
	if lastStageChange != nil && !lastStageChange.IsZero() {
		return *lastStageChange
	}
	return createdAt
}

// ComputeSLA returns nil when the stage is closed, lost or has no SLA configured.
func ComputeSLA(now, enteredAt time.Time, stage Stage) *SLAStatus {
	if stage.Terminal() || stage.SLAMinutes == nil || *stage.SLAMinutes <= 0 {
		return nil
	}
	elapsed := int(math.Floor(float64(now.Sub(enteredAt).Milliseconds()) / 60000))
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := *stage.SLAMinutes - elapsed
	status := &SLAStatus{
		SLAMinutes:       *stage.SLAMinutes,
		EnteredAt:        enteredAt,
		ElapsedMinutes:   elapsed,
		RemainingMinutes: remaining,
		Overdue:          remaining < 0,
	}
	status.Label = status.label()
	return status
}

func (s *SLAStatus) label() string {
	if s.RemainingMinutes < 0 {
		return fmt.Sprintf("overdue by %d minutes", -s.RemainingMinutes)
	}
	return fmt.Sprintf("%d minutes left", s.RemainingMinutes)
}
