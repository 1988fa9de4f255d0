package tui

import (
	"strings"
	"time"
)

// Spinner shows machine traffic with a decaying dot pattern.
// Lights up on every redraw, fades over time.
type Spinner struct {
	dots     int
	lastSeen time.Time
}

func (s *Spinner) OnActivity(now time.Time) {
	s.dots = 5
	s.lastSeen = now
}

// Decay fades the spinner dots based on time since the last activity.
func (s *Spinner) Decay(now time.Time) {
	if s.dots == 0 {
		return
	}
	elapsed := now.Sub(s.lastSeen)
	switch {
	case elapsed > 10*time.Second:
		s.dots = 0
	case elapsed > 8*time.Second:
		s.dots = 1
	case elapsed > 6*time.Second:
		s.dots = 2
	case elapsed > 4*time.Second:
		s.dots = 3
	case elapsed > 2*time.Second:
		s.dots = 4
	}
}

func (s Spinner) Dots() int { return s.dots }

func (s Spinner) Render(theme Theme) string {
	var result strings.Builder
	for i := range 5 {
		if i < s.dots {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}
