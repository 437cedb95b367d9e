// Package summary is the boundary to the AI meeting summarizer: it renders
// transcripts to plain text and turns them into structured summaries via an
// external model API.
package summary

import (
	"strings"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/capture"
)

// Result is the structured summary of one meeting transcript.
type Result struct {
	OverallSummary string   `json:"overallSummary"`
	KeyPoints      []string `json:"keyPoints"`
	ActionItems    []string `json:"actionItems"`
	NextSteps      []string `json:"nextSteps"`
	Topics         []string `json:"topics"`
}

// TranscriptText renders transcript entries as "speaker: text" lines joined
// by newlines, the plain-text form handed to the summarizer.
func TranscriptText(entries []capture.TranscriptEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(e.Speaker)
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}
