package app

import (
	"context"
	"fmt"
	"time"

	"lcdvnc/hal"
	"lcdvnc/internal/buildinfo"
	"lcdvnc/vncos/fonts"
	"lcdvnc/vncos/kernel"
	"lcdvnc/vncos/services/console"
	"lcdvnc/vncos/services/display"
	"lcdvnc/vncos/services/gui"
	"lcdvnc/vncos/services/rfb"
	"lcdvnc/vncos/tasks/fbtest"
)

const (
	DefaultHost   = "192.168.1.111"
	DefaultScreen = 1
)

type Config struct {
	// Host is the VNC server. Empty leaves the client idle until
	// Client.Connect is called.
	Host   string
	Screen int

	RequestPeriod        time.Duration
	ReconnectDelay       time.Duration
	MismatchCooldown     time.Duration
	LockTimeout          time.Duration
	SkipUnknownEncodings bool

	InitialMode gui.Mode
	GestureHold time.Duration
}

// DefaultConfig is the configuration compiled into device builds.
func DefaultConfig() Config {
	return Config{
		Host:        DefaultHost,
		Screen:      DefaultScreen,
		InitialMode: gui.ModeRFB,
	}
}

// System is the assembled terminal: one display serializer shared by the
// console, the RFB client and the test pattern, with the switcher handing
// the screen between them.
type System struct {
	Kernel   *kernel.Kernel
	Display  *display.Serializer
	Console  *console.Console
	Client   *rfb.Client
	Pattern  *fbtest.Task
	Switcher *gui.Switcher

	log hal.Logger
	cfg Config
}

// New wires the system on h. Nothing runs until Run.
func New(h hal.HAL, cfg Config) (*System, error) {
	log := h.Logger()

	disp := display.New(h.Panel(), log, display.Config{LockTimeout: cfg.LockTimeout})
	font, err := fonts.Default()
	if err != nil {
		return nil, fmt.Errorf("app: font: %w", err)
	}

	con := console.New(disp, log, console.Config{})
	if err := con.Init(font, 0, 0, 0, 0); err != nil {
		return nil, fmt.Errorf("app: console: %w", err)
	}
	con.PrintString(buildinfo.Banner() + "\n")

	client := rfb.New(rfb.Config{
		RequestPeriod:        cfg.RequestPeriod,
		ReconnectDelay:       cfg.ReconnectDelay,
		MismatchCooldown:     cfg.MismatchCooldown,
		SkipUnknownEncodings: cfg.SkipUnknownEncodings,
	}, disp, con, h.Dialer(), h.Touch(), log)

	pattern := fbtest.New(disp, font, log, fbtest.Config{})

	w, ht := disp.Size()
	sw := gui.New(h.Touch(), w, ht, map[gui.Mode]gui.Owner{
		gui.ModeConsole:     con,
		gui.ModeRFB:         client,
		gui.ModeDisplayTest: pattern,
	}, log, gui.Config{Hold: cfg.GestureHold, Initial: cfg.InitialMode})

	k := kernel.New(log)
	k.AddTask("rfb-recv", kernel.PriorityRealtime, client)
	k.AddTask("rfb-req", kernel.PriorityHigh, kernel.TaskFunc(client.RunRequests))
	k.AddTask("console", kernel.PriorityNormal, con)
	k.AddTask("gui", kernel.PriorityNormal, sw)
	k.AddTask("fbtest", kernel.PriorityLow, pattern)

	return &System{
		Kernel:   k,
		Display:  disp,
		Console:  con,
		Client:   client,
		Pattern:  pattern,
		Switcher: sw,
		log:      log,
		cfg:      cfg,
	}, nil
}

// Run gives the screen to the initial mode, starts the session and runs
// every task until ctx is done.
func (s *System) Run(ctx context.Context) error {
	installPanicHandler(s.log, s.Console)
	s.Switcher.Start()
	if s.cfg.Host != "" {
		s.Client.Connect(s.cfg.Host, s.cfg.Screen)
	}
	return s.Kernel.Run(ctx)
}

// Run builds the system on h and runs it until ctx is done.
func Run(ctx context.Context, h hal.HAL, cfg Config) error {
	sys, err := New(h, cfg)
	if err != nil {
		return err
	}
	return sys.Run(ctx)
}

// Main runs the system forever (TinyGo entrypoint). A failure to start is
// logged and the device parks.
func Main(h hal.HAL, cfg Config) {
	if err := Run(context.Background(), h, cfg); err != nil {
		if l := h.Logger(); l != nil {
			l.WriteLineString("app: " + err.Error())
		}
	}
	select {}
}
