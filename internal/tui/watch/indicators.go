package watch

import (
	"strings"
	"time"
)

// Ticker alternates frames once per tick; a frozen frame means the UI
// stopped receiving ticks.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"◐", "◓", "◑", "◒"}}
}

func (t *Ticker) Tick() { t.index = (t.index + 1) % len(t.frames) }

func (t Ticker) Current() string { return t.frames[t.index] }

const pulseWidth = 5

// Pulse lights up on every event and loses one dot per pulseStep.
type Pulse struct {
	lastEvent time.Time
	now       func() time.Time
}

const pulseStep = 2 * time.Second

func NewPulse() Pulse {
	return Pulse{now: time.Now}
}

func (p *Pulse) OnEvent() { p.lastEvent = p.now() }

func (p Pulse) LastEvent() time.Time { return p.lastEvent }

// Lit returns the number of bright dots.
func (p Pulse) Lit() int {
	if p.lastEvent.IsZero() {
		return 0
	}
	faded := int(p.now().Sub(p.lastEvent) / pulseStep)
	return max(pulseWidth-faded, 0)
}

func (p Pulse) Render(theme Theme) string {
	lit := p.Lit()
	var b strings.Builder
	for i := range pulseWidth {
		if i < lit {
			b.WriteString(theme.PulseOn.Render("●"))
		} else {
			b.WriteString(theme.PulseOff.Render("○"))
		}
	}
	return b.String()
}
