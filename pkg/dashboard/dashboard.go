// Vehicle dashboard pages and signal mapping
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package dashboard maps vehicle bus signals and display touch input onto
// the dashboard's pages and trend curves.
package dashboard

import (
	"fmt"
	"sync"

	"dashbridge/pkg/canbus"
	"dashbridge/pkg/curve"
	"dashbridge/pkg/dispatch"
	"dashbridge/pkg/dwin"
	"dashbridge/pkg/log"
	"dashbridge/pkg/pool"
)

// Curves and the windows that show them.
const (
	CurveSpeed    = 0
	CurveRealAcc  = 1
	CurveEstAcc   = 2
	WindowSpeed   = 0
	WindowAccel   = 1
	SpeedChannel  = 0x0301
	AccelChannel  = 0x0301
	EstAccChannel = 0x0303
)

// Pages.
const (
	PageMain   = 0
	PageDetail = 1
)

// BusSender transmits frames on the vehicle bus.
type BusSender interface {
	Send(f canbus.Frame) error
}

// Page describes what the refresh loop writes while a page is shown.
type Page struct {
	ID    uint16
	Start int // first variable index
	Count int
	Show  func(d *Dashboard) error
}

// Dashboard holds the page state. It is created once at startup and shared
// by the receive loops and the refresh loop.
type Dashboard struct {
	vars    *Vars
	curves  *curve.Registry
	display curve.Display
	bus     BusSender
	pages   []Page
	logger  *log.Logger

	mu     sync.Mutex
	page   uint16
	upload [7]byte
}

// New creates a dashboard drawing into curves and display. bus may be nil
// when the vehicle bus is disabled; uploads are then not echoed.
func New(curves *curve.Registry, display curve.Display, bus BusSender) *Dashboard {
	d := &Dashboard{
		vars:    NewVars(),
		curves:  curves,
		display: display,
		bus:     bus,
		logger:  log.GetLogger("dashboard"),
		page:    PageMain,
	}
	d.pages = []Page{
		{ID: PageMain, Start: VarProgress, Count: NumVars, Show: (*Dashboard).drawProgressBar},
	}
	return d
}

// SetLogger replaces the dashboard logger.
func (d *Dashboard) SetLogger(l *log.Logger) { d.logger = l }

// Vars returns the page variable table.
func (d *Dashboard) Vars() *Vars { return d.vars }

// InitCurves creates the speed and acceleration curves and selects the
// speed window.
func (d *Dashboard) InitCurves() error {
	curves := []struct {
		id      int
		channel uint16
		adjust  curve.AdjustFunc
		window  int
	}{
		{CurveSpeed, SpeedChannel, SpeedAdjust, WindowSpeed},
		{CurveRealAcc, AccelChannel, AccelAdjust, WindowAccel},
		{CurveEstAcc, EstAccChannel, AccelAdjust, WindowAccel},
	}
	for _, c := range curves {
		if err := d.curves.InitCurve(c.id, c.channel, c.adjust); err != nil {
			return err
		}
		if err := d.curves.Register(c.id, c.window); err != nil {
			return err
		}
	}
	return d.curves.SetActiveWindow(WindowSpeed)
}

// RegisterBus installs the bus message parsers.
func (d *Dashboard) RegisterBus(t *dispatch.Table[uint32]) error {
	handlers := []struct {
		id uint32
		fn func(uint32, []byte)
	}{
		{BusIDStatus, d.onStatus},
		{BusIDAccel, d.onAccel},
		{BusIDChassis, d.onChassis},
	}
	for _, h := range handlers {
		if err := t.RegisterFunc(h.id, h.fn); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDisplay installs the touch input parsers.
func (d *Dashboard) RegisterDisplay(t *dispatch.Table[uint16]) error {
	handlers := []struct {
		addr uint16
		fn   func(uint16, []byte)
	}{
		{AddrMassSlider, d.onMass},
		{AddrSlopeSlider, d.onSlope},
		{AddrPageSelect, d.onPageSelect},
		{AddrCurveButton, d.onCurveButton},
	}
	for _, h := range handlers {
		if err := t.RegisterFunc(h.addr, h.fn); err != nil {
			return err
		}
	}
	return nil
}

// Page returns the page the display reports as shown.
func (d *Dashboard) Page() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

func (d *Dashboard) setPage(id uint16) {
	d.mu.Lock()
	d.page = id
	d.mu.Unlock()
}

// Refresh performs one display update: the current page's variables, its
// drawing hook, then the active curve window.
func (d *Dashboard) Refresh() error {
	current := d.Page()
	for i := range d.pages {
		p := &d.pages[i]
		if p.ID != current {
			continue
		}
		if err := d.sendVars(p); err != nil {
			return err
		}
		if p.Show != nil {
			if err := p.Show(d); err != nil {
				return err
			}
		}
	}
	return d.curves.Render()
}

func (d *Dashboard) sendVars(p *Page) error {
	words := pool.GetWords()
	defer pool.PutWords(words)
	frame := pool.GetFrame()
	defer pool.PutFrame(frame)

	*words = d.vars.Snapshot(*words, p.Start, p.Count)
	frame.B = dwin.AppendWrite(frame.B, uint16(VarBaseAddr+p.Start), *words)
	return d.display.Send(frame.B)
}

// Progress bar artwork: a 470 px wide strip on page 2 is copied onto the
// main page, starting further right as progress drops.
const (
	AddrProgressBar = 0x5100
	progressWidth   = 470
)

func (d *Dashboard) drawProgressBar() error {
	progress := d.vars.Get(VarProgress)
	if progress > 100 {
		progress = 100
	}
	xss := uint16((1 - float64(progress)/100.0) * progressWidth)
	frame := pool.GetFrame()
	defer pool.PutFrame(frame)
	frame.B = dwin.AppendCopyImage(frame.B, AddrProgressBar, dwin.CopyImage{
		SourcePage: 2,
		X0:         xss, Y0: 0,
		X1: 0x01D6, Y1: 0x0023,
		DstX: 0x000E, DstY: 0x000A,
	})
	return d.display.Send(frame.B)
}

func (d *Dashboard) short(kind string, key interface{}, payload []byte, need int) bool {
	if len(payload) >= need {
		return false
	}
	d.logger.WithFields(log.Fields{
		"key":  fmt.Sprintf("%#x", key),
		"size": len(payload),
		"need": need,
	}).Warn("short " + kind + " payload")
	return true
}
