// Runtime context tying the display link, vehicle bus and dashboard together
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package bridge owns the running dashboard: both dispatch tables, the
// curve registry, the display codec and the three tasks that drive them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"dashbridge/pkg/canbus"
	"dashbridge/pkg/curve"
	"dashbridge/pkg/dashboard"
	"dashbridge/pkg/dispatch"
	"dashbridge/pkg/dwin"
	"dashbridge/pkg/log"
	"dashbridge/pkg/metrics"
	"dashbridge/pkg/pool"
	"dashbridge/pkg/serial"
)

// Dispatch table sizes.
const (
	BusHandlers     = 8
	DisplayHandlers = 8
)

// DefaultInterval is the refresh period when Options leaves it unset.
const DefaultInterval = 50 * time.Millisecond

// Link is the byte stream to the display. Read should return
// serial.ErrTimeout periodically so cancellation is noticed.
type Link interface {
	io.ReadWriteCloser
}

// Options tune a Bridge.
type Options struct {
	// Interval between refresh passes.
	Interval time.Duration
	// ClearDelay between channel clear frames; negative disables.
	ClearDelay time.Duration
	// CurveCapacity is the number of samples each curve keeps.
	CurveCapacity int
	// Metrics receives counters when set.
	Metrics *metrics.BridgeMetrics
}

// Bridge is created once at startup, populated, sealed, then run.
type Bridge struct {
	link Link
	bus  canbus.Bus

	sender    *dwin.Sender
	assembler *dwin.Assembler
	busTable  *dispatch.Table[uint32]
	dispTable *dispatch.Table[uint16]
	curves    *curve.Registry
	dash      *dashboard.Dashboard

	interval time.Duration
	metrics  *metrics.BridgeMetrics
	logger   *log.Logger
}

// New wires a bridge over link and bus. bus may be nil to run the display
// alone. Every registration happens here; the tables are sealed before New
// returns, so any error is a startup failure.
func New(link Link, bus canbus.Bus, opts Options) (*Bridge, error) {
	if link == nil {
		return nil, errors.New("bridge: display link is required")
	}
	b := &Bridge{
		link:      link,
		bus:       bus,
		sender:    dwin.NewSender(link, "display"),
		busTable:  dispatch.New[uint32]("bus", BusHandlers),
		dispTable: dispatch.New[uint16]("display", DisplayHandlers),
		interval:  opts.Interval,
		metrics:   opts.Metrics,
		logger:    log.GetLogger("bridge"),
	}
	if b.interval <= 0 {
		b.interval = DefaultInterval
	}
	b.assembler = dwin.NewAssembler(b.dispTable)

	curves, err := curve.NewRegistry(b.sender, curve.Options{
		Capacity:   opts.CurveCapacity,
		ClearDelay: opts.ClearDelay,
	})
	if err != nil {
		return nil, err
	}
	b.curves = curves

	var echo dashboard.BusSender
	if bus != nil {
		echo = busCounter{bus: bus, m: b.metrics}
	}
	b.dash = dashboard.New(curves, b.sender, echo)
	if err := b.dash.InitCurves(); err != nil {
		return nil, fmt.Errorf("bridge: curves: %w", err)
	}
	if err := b.dash.RegisterBus(b.busTable); err != nil {
		return nil, fmt.Errorf("bridge: bus handlers: %w", err)
	}
	if err := b.dash.RegisterDisplay(b.dispTable); err != nil {
		return nil, fmt.Errorf("bridge: display handlers: %w", err)
	}
	b.busTable.Seal()
	b.dispTable.Seal()

	if b.metrics != nil {
		b.metrics.Registry().OnGather(b.collect)
	}
	return b, nil
}

// Dashboard returns the business layer.
func (b *Bridge) Dashboard() *dashboard.Dashboard { return b.dash }

// Curves returns the curve registry.
func (b *Bridge) Curves() *curve.Registry { return b.curves }

// BusTable returns the sealed bus id table.
func (b *Bridge) BusTable() *dispatch.Table[uint32] { return b.busTable }

// DisplayTable returns the sealed display address table.
func (b *Bridge) DisplayTable() *dispatch.Table[uint16] { return b.dispTable }

// Run starts the display receive, bus receive and refresh tasks and
// blocks until ctx is cancelled or a transport fails. Both transports are
// closed before Run returns. A cancelled context is not an error.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				b.logger.WithError(err).Error(name + " task stopped")
				errOnce.Do(func() { firstErr = err })
			}
			cancel()
		}()
	}

	b.logger.Info("bridge running, refresh every %v", b.interval)
	start("display", b.displayLoop)
	if b.bus != nil {
		start("bus", b.busLoop)
	}
	start("refresh", b.refreshLoop)

	<-ctx.Done()
	if b.bus != nil {
		b.bus.Close()
	}
	b.link.Close()
	wg.Wait()
	b.logger.Info("bridge stopped")
	return firstErr
}

// displayLoop reads the link and assembles one frame per Feed call,
// handing the surplus back until the read is used up.
func (b *Bridge) displayLoop(ctx context.Context) error {
	b.linkUp("display", true)
	defer b.linkUp("display", false)

	buf := make([]byte, 2*dwin.MaxFrame)
	for {
		n, err := b.link.Read(buf)
		for p := buf[:n]; len(p) > 0; {
			p = p[b.assembler.Feed(p):]
		}
		if n > 0 {
			b.observeAssembler()
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, serial.ErrTimeout) {
			continue
		}
		if n := b.assembler.Buffered(); n > 0 {
			b.logger.Warn("display link lost with %d bytes of a partial frame", n)
		}
		return fmt.Errorf("display read: %w", err)
	}
}

func (b *Bridge) busLoop(ctx context.Context) error {
	b.linkUp("bus", true)
	defer b.linkUp("bus", false)

	for {
		f, err := b.bus.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, canbus.ErrTimeout) {
				continue
			}
			return fmt.Errorf("bus receive: %w", err)
		}
		if b.metrics != nil {
			b.metrics.BusFrames.Inc(metrics.Labels{"dir": "rx"})
		}
		b.busTable.Dispatch(f.ID, f.Payload())
	}
}

func (b *Bridge) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Refresh()
		}
	}
}

// Refresh runs one refresh pass. A failed write is logged and counted;
// the next pass tries again.
func (b *Bridge) Refresh() error {
	start := time.Now()
	err := b.dash.Refresh()
	if b.metrics != nil {
		b.metrics.RefreshDuration.Since(nil, start)
		if err != nil {
			b.metrics.RefreshErrors.Inc(nil)
		}
	}
	if err != nil {
		b.logger.WithError(err).Debug("refresh failed")
	}
	return err
}

func (b *Bridge) linkUp(name string, up bool) {
	if b.metrics == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	b.metrics.LinkUp.Set(metrics.Labels{"link": name}, v)
}

// observeAssembler copies assembler totals. Only the display task touches
// the assembler, so this runs there rather than at gather time.
func (b *Bridge) observeAssembler() {
	if b.metrics == nil {
		return
	}
	st := b.assembler.Stats()
	b.metrics.DisplayFrames.Store(metrics.Labels{"kind": "frame"}, st.Frames)
	b.metrics.DisplayFrames.Store(metrics.Labels{"kind": "ack"}, st.Acks)
	b.metrics.DisplayResyncs.Store(nil, st.Resyncs)
	b.metrics.DisplayDiscarded.Store(nil, st.Discarded)
}

func (b *Bridge) collect() {
	m := b.metrics
	st := b.sender.Stats()
	m.FramesSent.Store(nil, st.Frames)
	m.BytesSent.Store(nil, st.Bytes)
	m.SendErrors.Store(nil, st.Errors)
	m.DispatchMisses.Store(metrics.Labels{"table": b.busTable.Name()}, b.busTable.Misses())
	m.DispatchMisses.Store(metrics.Labels{"table": b.dispTable.Name()}, b.dispTable.Misses())
	m.ActiveWindow.Set(nil, float64(b.curves.ActiveWindow()))
	m.Page.Set(nil, float64(b.dash.Page()))
	ps := pool.GetStats()
	m.PoolGets.Store(nil, ps.Gets)
	m.PoolAllocs.Store(nil, ps.Allocs)
}

// busCounter counts frames the dashboard echoes to the bus.
type busCounter struct {
	bus canbus.Bus
	m   *metrics.BridgeMetrics
}

func (c busCounter) Send(f canbus.Frame) error {
	err := c.bus.Send(f)
	if err == nil && c.m != nil {
		c.m.BusFrames.Inc(metrics.Labels{"dir": "tx"})
	}
	return err
}
