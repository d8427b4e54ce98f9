package models

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentIndexing   DocumentStatus = "indexing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// documentOrder gives each non-terminal status its position in the pipeline.
var documentOrder = map[DocumentStatus]int{
	DocumentUploaded:   0,
	DocumentPending:    1,
	DocumentProcessing: 2,
	DocumentIndexing:   3,
	DocumentReady:      4,
}

// Terminal reports whether no further transitions are allowed.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentReady || s == DocumentFailed
}

// CanTransition reports whether moving from s to next is legal. Statuses
// advance monotonically forward; failed is reachable from any non-terminal
// status.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == DocumentFailed {
		return true
	}
	from, ok := documentOrder[s]
	if !ok {
		return false
	}
	to, ok := documentOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}

// AssessmentStatus tracks an assessment through generation.
type AssessmentStatus string

const (
	AssessmentPending    AssessmentStatus = "pending"
	AssessmentProcessing AssessmentStatus = "processing"
	AssessmentCompleted  AssessmentStatus = "completed"
	AssessmentFailed     AssessmentStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s AssessmentStatus) Terminal() bool {
	return s == AssessmentCompleted || s == AssessmentFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s AssessmentStatus) CanTransition(next AssessmentStatus) bool {
	switch s {
	case AssessmentPending:
		return next == AssessmentProcessing || next == AssessmentFailed
	case AssessmentProcessing:
		return next == AssessmentCompleted || next == AssessmentFailed
	default:
		return false
	}
}
