// Prometheus text-format metrics
//
// Counter, Gauge and Histogram values keyed by label set, collected in a
// Registry whose Gather output can be scraped over HTTP.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels are metric labels as key-value pairs
type Labels map[string]string

// sorted returns the label names in order.
func (l Labels) sorted() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// key identifies a label set inside one metric.
func (l Labels) key() string {
	var sb strings.Builder
	for i, k := range l.sorted() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// format renders labels in Prometheus syntax, extra pairs appended last.
func (l Labels) format(extra ...string) string {
	if len(l) == 0 && len(extra) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	n := 0
	write := func(k, v string) {
		if n > 0 {
			sb.WriteByte(',')
		}
		n++
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(v))
		sb.WriteByte('"')
	}
	for _, k := range l.sorted() {
		write(k, l[k])
	}
	for i := 0; i+1 < len(extra); i += 2 {
		write(extra[i], extra[i+1])
	}
	sb.WriteByte('}')
	return sb.String()
}

func (l Labels) String() string { return l.format() }

func (l Labels) clone() Labels {
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(s string) string { return labelEscaper.Replace(s) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

type base struct {
	name string
	help string
}

func (b base) Name() string { return b.name }
func (b base) Help() string { return b.help }

func (b base) header(sb *strings.Builder, t MetricType) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", b.name, b.help, b.name, t)
}

// series returns the value stored for labels, creating it with mk.
func series[V any](m *sync.Map, labels Labels, mk func(Labels) *V) *V {
	key := labels.key()
	if v, ok := m.Load(key); ok {
		return v.(*V)
	}
	v, _ := m.LoadOrStore(key, mk(labels.clone()))
	return v.(*V)
}

// sortedSeries visits values in label key order so output is stable.
func sortedSeries[V any](m *sync.Map, fn func(*V)) {
	var keys []string
	vals := map[string]*V{}
	m.Range(func(k, v any) bool {
		keys = append(keys, k.(string))
		vals[k.(string)] = v.(*V)
		return true
	})
	sort.Strings(keys)
	for _, k := range keys {
		fn(vals[k])
	}
}

// Counter is a monotonically increasing metric
type Counter struct {
	base
	values sync.Map
}

type counterValue struct {
	labels Labels
	value  atomic.Uint64
}

func newCounterValue(l Labels) *counterValue { return &counterValue{labels: l} }

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	return &Counter{base: base{name, help}}
}

func (c *Counter) Type() MetricType { return TypeCounter }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add increments the counter by delta
func (c *Counter) Add(labels Labels, delta uint64) {
	series(&c.values, labels, newCounterValue).value.Add(delta)
}

// Store sets the counter from a total kept elsewhere. Values below the
// current one are ignored so the series never decreases.
func (c *Counter) Store(labels Labels, total uint64) {
	cv := series(&c.values, labels, newCounterValue)
	for {
		cur := cv.value.Load()
		if total <= cur || cv.value.CompareAndSwap(cur, total) {
			return
		}
	}
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) uint64 {
	v, ok := c.values.Load(labels.key())
	if !ok {
		return 0
	}
	return v.(*counterValue).value.Load()
}

func (c *Counter) Write(sb *strings.Builder) {
	c.header(sb, TypeCounter)
	sortedSeries(&c.values, func(cv *counterValue) {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, cv.labels.format(), cv.value.Load())
	})
}

// Gauge is a metric that can go up and down
type Gauge struct {
	base
	values sync.Map
}

type gaugeValue struct {
	labels Labels
	mu     sync.Mutex
	value  float64
}

func newGaugeValue(l Labels) *gaugeValue { return &gaugeValue{labels: l} }

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	return &Gauge{base: base{name, help}}
}

func (g *Gauge) Type() MetricType { return TypeGauge }

// Set sets the gauge to value
func (g *Gauge) Set(labels Labels, value float64) {
	gv := series(&g.values, labels, newGaugeValue)
	gv.mu.Lock()
	gv.value = value
	gv.mu.Unlock()
}

// Add adds delta to the gauge
func (g *Gauge) Add(labels Labels, delta float64) {
	gv := series(&g.values, labels, newGaugeValue)
	gv.mu.Lock()
	gv.value += delta
	gv.mu.Unlock()
}

// Get returns the gauge value for labels
func (g *Gauge) Get(labels Labels) float64 {
	v, ok := g.values.Load(labels.key())
	if !ok {
		return 0
	}
	gv := v.(*gaugeValue)
	gv.mu.Lock()
	defer gv.mu.Unlock()
	return gv.value
}

func (g *Gauge) Write(sb *strings.Builder) {
	g.header(sb, TypeGauge)
	sortedSeries(&g.values, func(gv *gaugeValue) {
		gv.mu.Lock()
		v := gv.value
		gv.mu.Unlock()
		fmt.Fprintf(sb, "%s%s %s\n", g.name, gv.labels.format(), formatFloat(v))
	})
}

// Histogram tracks the distribution of observations
type Histogram struct {
	base
	buckets []float64
	values  sync.Map
}

type histogramValue struct {
	labels  Labels
	mu      sync.Mutex
	count   uint64
	sum     float64
	buckets []uint64 // per bucket, not cumulative
}

// NewHistogram creates a histogram with the given upper bounds
func NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return &Histogram{base: base{name, help}, buckets: sorted}
}

// ExponentialBuckets creates count buckets starting at start with factor multiplier
func ExponentialBuckets(start, factor float64, count int) []float64 {
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start
		start *= factor
	}
	return buckets
}

func (h *Histogram) Type() MetricType { return TypeHistogram }

func (h *Histogram) value(labels Labels) *histogramValue {
	return series(&h.values, labels, func(l Labels) *histogramValue {
		return &histogramValue{labels: l, buckets: make([]uint64, len(h.buckets))}
	})
}

// Observe records a value in the histogram
func (h *Histogram) Observe(labels Labels, value float64) {
	hv := h.value(labels)
	i := sort.SearchFloat64s(h.buckets, value)
	hv.mu.Lock()
	hv.count++
	hv.sum += value
	if i < len(hv.buckets) {
		hv.buckets[i]++
	}
	hv.mu.Unlock()
}

// Since records the seconds elapsed since start.
func (h *Histogram) Since(labels Labels, start time.Time) {
	h.Observe(labels, time.Since(start).Seconds())
}

// Count returns the number of observations for labels.
func (h *Histogram) Count(labels Labels) uint64 {
	v, ok := h.values.Load(labels.key())
	if !ok {
		return 0
	}
	hv := v.(*histogramValue)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	return hv.count
}

func (h *Histogram) Write(sb *strings.Builder) {
	h.header(sb, TypeHistogram)
	sortedSeries(&h.values, func(hv *histogramValue) {
		hv.mu.Lock()
		count, sum := hv.count, hv.sum
		counts := append([]uint64(nil), hv.buckets...)
		hv.mu.Unlock()

		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += counts[i]
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, hv.labels.format("le", formatFloat(bound)), cumulative)
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, hv.labels.format("le", "+Inf"), count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, hv.labels.format(), formatFloat(sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, hv.labels.format(), count)
	})
}

// Registry holds registered metrics in registration order
type Registry struct {
	mu         sync.RWMutex
	metrics    map[string]Metric
	order      []string
	collectors []func()
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric to the registry
func (r *Registry) Register(metric Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := metric.Name()
	if _, exists := r.metrics[name]; exists {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.metrics[name] = metric
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds metrics and panics on error
func (r *Registry) MustRegister(metrics ...Metric) {
	for _, m := range metrics {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// OnGather adds a function run before every Gather, used to copy totals
// that components keep themselves.
func (r *Registry) OnGather(fn func()) {
	r.mu.Lock()
	r.collectors = append(r.collectors, fn)
	r.mu.Unlock()
}

// Get returns a metric by name
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather collects all metrics in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	collectors := append([]func(){}, r.collectors...)
	r.mu.RUnlock()
	for _, fn := range collectors {
		fn()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
