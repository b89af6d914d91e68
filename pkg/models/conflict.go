package models

import (
	"time"
)

// Conflict records an entry whose kind differed between the two sides
type Conflict struct {
	// Path is the relative path of the conflicting entry
	Path string `json:"path"`

	KindA    Kind      `json:"kind_a"`
	KindB    Kind      `json:"kind_b"`
	ModTimeA time.Time `json:"mod_time_a"`
	ModTimeB time.Time `json:"mod_time_b"`

	// Winner is the side whose object replaced the other
	Winner Side `json:"winner"`

	// TieBreak is set when both sides had the same modification time
	TieBreak bool `json:"tie_break,omitempty"`

	DetectedAt time.Time `json:"detected_at"`

	// ResultDescription describes the outcome of the resolution
	ResultDescription string `json:"result_description,omitempty"`
}

// NewConflict builds a conflict record for a resolved type mismatch
func NewConflict(entry Entry, decision Decision) Conflict {
	c := Conflict{
		Path:       entry.RelativePath,
		KindA:      entry.A.Kind,
		KindB:      entry.B.Kind,
		ModTimeA:   entry.A.ModTime,
		ModTimeB:   entry.B.ModTime,
		Winner:     decision.Winner,
		TieBreak:   entry.A.ModTime.Equal(entry.B.ModTime),
		DetectedAt: time.Now(),
	}
	loser := entry.B.Kind
	winner := entry.A.Kind
	if decision.Winner == SideB {
		loser, winner = entry.A.Kind, entry.B.Kind
	}
	c.ResultDescription = string(winner) + " on side " + string(decision.Winner) +
		" replaced " + string(loser) + " on side " + string(decision.Winner.Other())
	return c
}
