package gui

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"lcdvnc/hal"
	"lcdvnc/vncos/kernel"
)

// DefaultPeriod is the touch poll interval of the switcher task.
const DefaultPeriod = 100 * time.Millisecond

// Mode is what currently owns the screen.
type Mode uint8

const (
	ModeConsole Mode = iota
	ModeRFB
	ModeDisplayTest

	modeCount
)

func (m Mode) String() string {
	switch m {
	case ModeConsole:
		return "console"
	case ModeRFB:
		return "rfb"
	case ModeDisplayTest:
		return "display-test"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseMode accepts the names produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	for m := Mode(0); m < modeCount; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("gui: unknown mode %q", s)
}

// Owner is a component that can take and release the screen.
type Owner interface {
	Activate()
	Deactivate()
}

// next is the transition table, indexed by current mode.
var next = [modeCount]struct{ left, right Mode }{
	ModeConsole:     {left: ModeRFB, right: ModeDisplayTest},
	ModeRFB:         {left: ModeConsole, right: ModeDisplayTest},
	ModeDisplayTest: {left: ModeRFB, right: ModeRFB},
}

// Next returns the mode a completed corner gesture switches to.
func Next(m Mode, c Corner) Mode {
	if m >= modeCount {
		return m
	}
	switch c {
	case CornerBottomLeft:
		return next[m].left
	case CornerBottomRight:
		return next[m].right
	default:
		return m
	}
}

type Config struct {
	Period  time.Duration
	Hold    time.Duration
	Initial Mode
	Now     func() time.Time
}

// Switcher hands the screen between owners in response to corner holds.
type Switcher struct {
	owners [modeCount]Owner
	touch  hal.Touch
	log    hal.Logger
	period time.Duration
	detect *HoldDetector

	mu       sync.Mutex
	current  Mode
	previous Mode
	started  bool
}

// New returns a switcher for a width x height touch panel. Owners missing
// from owners are skipped by gestures.
func New(touch hal.Touch, width, height int, owners map[Mode]Owner, log hal.Logger, cfg Config) *Switcher {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	s := &Switcher{
		touch:   touch,
		log:     log,
		period:  cfg.Period,
		detect:  NewHoldDetector(width, height, cfg.Hold, cfg.Now),
		current: cfg.Initial,
	}
	for m, o := range owners {
		if m < modeCount {
			s.owners[m] = o
		}
	}
	return s
}

func (s *Switcher) logf(format string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.WriteLineString("gui: " + fmt.Sprintf(format, args...))
}

func (s *Switcher) Current() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Switcher) Previous() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous
}

// Start activates the initial owner. Later calls do nothing.
func (s *Switcher) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.logf("starting in %s", s.current)
	if o := s.owners[s.current]; o != nil {
		o.Activate()
	}
}

// Set switches to m: the outgoing owner is deactivated before the
// incoming one is activated. It reports whether the mode changed.
func (s *Switcher) Set(m Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m >= modeCount || m == s.current || s.owners[m] == nil {
		return false
	}
	s.logf("switching %s -> %s", s.current, m)
	if o := s.owners[s.current]; o != nil {
		o.Deactivate()
	}
	s.previous = s.current
	s.current = m
	s.owners[m].Activate()
	s.started = true
	return true
}

// Step polls touch once and switches mode on a completed gesture.
func (s *Switcher) Step() Mode {
	if s.touch == nil {
		return s.Current()
	}
	c := s.detect.Sample(s.touch.ReadPoint())
	if c == CornerNone {
		return s.Current()
	}
	s.logf("%s held", c)
	s.Set(Next(s.Current(), c))
	return s.Current()
}

// Run is the switcher task.
func (s *Switcher) Run(ctx context.Context) error {
	s.Start()
	return kernel.Every(ctx, s.period, func(context.Context) error {
		s.Step()
		return nil
	})
}
