package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidFileTransitions(t *testing.T) {
	statuses := []string{FileStatusPending, FileStatusProcessing, FileStatusCompleted, FileStatusFailed}

	allowed := map[[2]string]bool{
		{FileStatusPending, FileStatusProcessing}:   true,
		{FileStatusProcessing, FileStatusCompleted}: true,
		{FileStatusProcessing, FileStatusFailed}:    true,
		{FileStatusFailed, FileStatusProcessing}:    true, // reupload
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := from == to || allowed[[2]string{from, to}]
			assert.Equal(t, want, ValidFileTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestValidFileTransitionUnknownStatus(t *testing.T) {
	assert.False(t, ValidFileTransition("bogus", FileStatusProcessing))
	assert.False(t, ValidFileTransition(FileStatusPending, "bogus"))
}

func TestCompletedIsTerminal(t *testing.T) {
	assert.False(t, ValidFileTransition(FileStatusCompleted, FileStatusProcessing))
	assert.False(t, ValidFileTransition(FileStatusCompleted, FileStatusFailed))
	assert.False(t, ValidFileTransition(FileStatusCompleted, FileStatusPending))
}
