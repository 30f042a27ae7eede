package model

// TaskKind tags what a derived task asks the gardener to do.
type TaskKind string

const (
	TaskWaterFirst   TaskKind = "water_first"
	TaskWaterOverdue TaskKind = "water_overdue"
	TaskWaterDue     TaskKind = "water_due"
	TaskWaterNudge   TaskKind = "water_nudge"
)

// Task is a care recommendation computed from garden state. It is never
// stored; every derivation produces fresh values.
//
// Priority 1 is the most urgent.
type Task struct {
	AssociationID string   `json:"associationId"`
	Name          string   `json:"name"`
	Kind          TaskKind `json:"kind"`
	Priority      int      `json:"priority"`
	Due           string   `json:"due"`
	Completed     bool     `json:"completed"`
}
