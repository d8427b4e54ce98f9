package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to DocumentStatus
		ok       bool
	}{
		{DocumentUploaded, DocumentPending, true},
		{DocumentPending, DocumentProcessing, true},
		{DocumentProcessing, DocumentIndexing, true},
		{DocumentIndexing, DocumentReady, true},
		{DocumentUploaded, DocumentProcessing, false},
		{DocumentPending, DocumentReady, false},
		{DocumentReady, DocumentPending, false},
		{DocumentReady, DocumentFailed, false},
		{DocumentFailed, DocumentPending, false},
		{DocumentUploaded, DocumentFailed, true},
		{DocumentIndexing, DocumentFailed, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestDocumentStatusTerminal(t *testing.T) {
	assert.True(t, DocumentReady.Terminal())
	assert.True(t, DocumentFailed.Terminal())
	assert.False(t, DocumentIndexing.Terminal())
}

func TestAssessmentStatusTransitions(t *testing.T) {
	assert.True(t, AssessmentPending.CanTransition(AssessmentProcessing))
	assert.True(t, AssessmentProcessing.CanTransition(AssessmentCompleted))
	assert.True(t, AssessmentProcessing.CanTransition(AssessmentFailed))
	assert.False(t, AssessmentPending.CanTransition(AssessmentCompleted))
	assert.False(t, AssessmentCompleted.CanTransition(AssessmentProcessing))
	assert.False(t, AssessmentFailed.CanTransition(AssessmentProcessing))
}

func TestValidQuestionType(t *testing.T) {
	for _, qt := range AllowedQuestionTypes {
		assert.True(t, ValidQuestionType(qt))
	}
	assert.False(t, ValidQuestionType("essay"))
	assert.False(t, ValidQuestionType(""))
}
