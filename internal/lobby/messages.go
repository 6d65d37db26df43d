package lobby

import (
	"fmt"

	"github.com/arenahall/lobbyd/internal/domain"
)

// Messages holds the texts sent to participants. Format verbs are noted per
// field.
type Messages struct {
	Countdown    string `json:"countdown" yaml:"countdown"`         // %d seconds
	Joined       string `json:"joined" yaml:"joined"`               // %s participant
	Quit         string `json:"quit" yaml:"quit"`                   // %s participant
	InProgress   string `json:"in_progress" yaml:"in_progress"`     // told to forced observers
	LoginLoading string `json:"login_loading" yaml:"login_loading"` // login refusal reason
	Started      string `json:"started" yaml:"started"`
}

// DefaultMessages returns the stock English texts.
func DefaultMessages() Messages {
	return Messages{
		Countdown:    "Game starting in %d seconds!",
		Joined:       "%s joined!",
		Quit:         "%s quit.",
		InProgress:   "A game is currently in process. Please wait for the next one to start.",
		LoginLoading: "Game loading. Please reconnect.",
		Started:      "The game has started!",
	}
}

// withDefaults fills every empty field from DefaultMessages.
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&m.Countdown, d.Countdown)
	fill(&m.Joined, d.Joined)
	fill(&m.Quit, d.Quit)
	fill(&m.InProgress, d.InProgress)
	fill(&m.LoginLoading, d.LoginLoading)
	fill(&m.Started, d.Started)
	return m
}

func (m Messages) joined(who domain.ParticipantID) string { return fmt.Sprintf(m.Joined, who) }

func (m Messages) quit(who domain.ParticipantID) string { return fmt.Sprintf(m.Quit, who) }
