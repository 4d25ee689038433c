// Bridge metrics definitions
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

// BridgeMetrics holds the counters exported by the dashboard bridge.
type BridgeMetrics struct {
	registry *Registry

	// Display link
	DisplayFrames    *Counter // kind=frame|ack
	DisplayResyncs   *Counter
	DisplayDiscarded *Counter
	FramesSent       *Counter
	BytesSent        *Counter
	SendErrors       *Counter

	// Vehicle bus
	BusFrames *Counter // dir=rx|tx

	// Dispatch
	DispatchMisses *Counter // table=bus|display

	// Refresh loop
	RefreshDuration *Histogram
	RefreshErrors   *Counter
	ActiveWindow    *Gauge
	Page            *Gauge

	LinkUp *Gauge // link=display|bus

	// Refresh buffer pool
	PoolGets   *Counter
	PoolAllocs *Counter
}

// NewBridgeMetrics creates and registers all bridge metrics.
func NewBridgeMetrics() *BridgeMetrics {
	m := &BridgeMetrics{
		registry: NewRegistry(),

		DisplayFrames:    NewCounter("dashbridge_display_frames_total", "Frames received from the display"),
		DisplayResyncs:   NewCounter("dashbridge_display_resyncs_total", "Display stream resynchronizations"),
		DisplayDiscarded: NewCounter("dashbridge_display_discarded_bytes_total", "Bytes dropped while resynchronizing"),
		FramesSent:       NewCounter("dashbridge_display_frames_sent_total", "Frames written to the display"),
		BytesSent:        NewCounter("dashbridge_display_bytes_sent_total", "Bytes written to the display"),
		SendErrors:       NewCounter("dashbridge_display_send_errors_total", "Failed or short display writes"),

		BusFrames: NewCounter("dashbridge_bus_frames_total", "Vehicle bus frames by direction"),

		DispatchMisses: NewCounter("dashbridge_dispatch_misses_total", "Messages with no registered handler"),

		RefreshDuration: NewHistogram("dashbridge_refresh_seconds", "Duration of one display refresh pass",
			ExponentialBuckets(0.0005, 2, 10)),
		RefreshErrors: NewCounter("dashbridge_refresh_errors_total", "Refresh passes that failed"),
		ActiveWindow:  NewGauge("dashbridge_active_window", "Curve window being rendered, -1 for none"),
		Page:          NewGauge("dashbridge_page", "Page reported by the display"),

		LinkUp: NewGauge("dashbridge_link_up", "1 while a transport receive loop is running"),

		PoolGets:   NewCounter("dashbridge_pool_gets_total", "Refresh buffers taken from the pool"),
		PoolAllocs: NewCounter("dashbridge_pool_allocs_total", "Refresh buffers the pool had to allocate"),
	}
	m.registry.MustRegister(
		m.DisplayFrames, m.DisplayResyncs, m.DisplayDiscarded,
		m.FramesSent, m.BytesSent, m.SendErrors,
		m.BusFrames, m.DispatchMisses,
		m.RefreshDuration, m.RefreshErrors, m.ActiveWindow, m.Page,
		m.LinkUp,
		m.PoolGets, m.PoolAllocs,
	)
	return m
}

// Registry returns the underlying registry.
func (m *BridgeMetrics) Registry() *Registry { return m.registry }

// Gather returns all metrics in Prometheus text format.
func (m *BridgeMetrics) Gather() string { return m.registry.Gather() }
