// ABOUTME: Tests for heuristic session-ref extraction from agent transcripts.
// ABOUTME: Pins the labelled-token and UUID-fallback behavior.

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSessionRef_LabelledToken(t *testing.T) {
	transcript := "starting up\nSession ID: 9f3e-abc.12\nready\n"
	ref := extractSessionRef(transcript, "prev")
	assert.Equal(t, "9f3e-abc.12", ref)
}

func TestExtractSessionRef_LabelVariants(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       string
	}{
		{"colon", "session: tok-123", "tok-123"},
		{"equals", "session=tok-456", "tok-456"},
		{"session id colon", "Session ID: tok-789", "tok-789"},
		{"session_id equals", "session_id=abc.def", "abc.def"},
		{"mixed case", "SESSION: UPPER-1", "UPPER-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSessionRef(tt.transcript, "prev"))
		})
	}
}

func TestExtractSessionRef_LastLabelWins(t *testing.T) {
	transcript := "Session ID: first-token\nsome chatter\nSession ID: second-token\n"
	assert.Equal(t, "second-token", extractSessionRef(transcript, ""))
}

func TestExtractSessionRef_UUIDFallback(t *testing.T) {
	transcript := "resumed conversation 4fa85f64-5717-4562-b3fc-2c963f66afa6 successfully"
	ref := extractSessionRef(transcript, "prev")
	assert.Equal(t, "4fa85f64-5717-4562-b3fc-2c963f66afa6", ref)
}

func TestExtractSessionRef_LabelBeatsUUID(t *testing.T) {
	transcript := "id 4fa85f64-5717-4562-b3fc-2c963f66afa6\nsession: labelled-token\n"
	assert.Equal(t, "labelled-token", extractSessionRef(transcript, ""))
}

func TestExtractSessionRef_NeitherKeepsPrevious(t *testing.T) {
	transcript := "just some ordinary output with no identifiers"
	assert.Equal(t, "prev-ref", extractSessionRef(transcript, "prev-ref"))
}

func TestExtractSessionRef_EmptyTranscript(t *testing.T) {
	assert.Equal(t, "prev-ref", extractSessionRef("", "prev-ref"))
	assert.Equal(t, "", extractSessionRef("", ""))
}
