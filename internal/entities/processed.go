package entities

// ProcessedCondition summarizes one fact the condition processor turned into
// a RiverCondition row. QualityChanged is set only when both the old and new
// quality labels are known and differ.
type ProcessedCondition struct {
	RiverID        string
	RiverName      string
	Quality        string
	Runnability    string
	FlowRate       *float64
	Source         string
	QualityChanged bool
	OldQuality     string
	NewQuality     string
}
