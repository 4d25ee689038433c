// mock-display simulates the DWIN touch display for bench testing the
// bridge without hardware. It decodes every frame the bridge writes,
// acknowledges writes like the real panel, and turns commands typed on
// stdin into touch uploads.
//
// Usage:
//
//	mock-display -socket /tmp/dwin [-tcp :7000] [-trace]
//
// Commands (stdin):
//
//	page N     select page N
//	mass N     move the mass slider to N (0..1000)
//	slope N    move the slope slider to N (0..1000)
//	curve N    press curve button N (1 speed, 2 acceleration)
//	raw ADDR V upload word V at hex address ADDR
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"dashbridge/pkg/dashboard"
	"dashbridge/pkg/dispatch"
	"dashbridge/pkg/dwin"
	"dashbridge/pkg/log"
)

var logger = log.GetLogger("mock-display")

// panel is the simulated screen state for one connection.
type panel struct {
	mu    sync.Mutex
	conn  net.Conn
	ack   bool
	trace bool

	vars     [dashboard.NumVars]uint16
	samples  [dwin.CurveChannelCount]int
	clears   int
	unknown  int
	progress uint16
}

func newPanel(conn net.Conn, ack, trace bool) (*panel, *dispatch.Table[uint16]) {
	p := &panel{conn: conn, ack: ack, trace: trace}

	t := dispatch.New[uint16]("panel", 16)
	t.RegisterFunc(dashboard.VarBaseAddr, p.onVars)
	t.RegisterFunc(dwin.CurveAppendAddr, p.onCurve)
	t.RegisterFunc(dashboard.AddrProgressBar, p.onCopyImage)
	for i := 0; i < dwin.CurveChannelCount; i++ {
		t.RegisterFunc(uint16(dwin.CurveChannelBase+2*i), p.onClear)
	}
	t.SetFallback(dispatch.HandlerFunc[uint16](p.onUnknown))
	t.Seal()
	return p, t
}

func (p *panel) onVars(addr uint16, payload []byte) {
	p.mu.Lock()
	for i := 0; i+1 < len(payload) && i/2 < len(p.vars); i += 2 {
		p.vars[i/2] = binary.BigEndian.Uint16(payload[i:])
	}
	v := p.vars
	p.mu.Unlock()
	if p.trace {
		logger.WithFields(log.Fields{
			"progress": v[dashboard.VarProgress],
			"speed":    v[dashboard.VarSpeed],
			"acc":      int16(v[dashboard.VarSelfAcc]),
			"steering": int16(v[dashboard.VarSteering]),
			"mass":     v[dashboard.VarMass],
			"slope":    int16(v[dashboard.VarSlope]),
			"gear":     v[dashboard.VarGear],
		}).Debug("vars")
	}
}

// onCurve decodes "5A A5 nchan 00 {chan cnt samples}*".
func (p *panel) onCurve(addr uint16, payload []byte) {
	if len(payload) < 4 || payload[0] != dwin.SyncHi || payload[1] != dwin.SyncLo {
		logger.Warn("bad curve payload % X", payload)
		return
	}
	n := int(payload[2])
	rest := payload[4:]
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n && len(rest) >= 2; i++ {
		ch, cnt := int(rest[0]), int(rest[1])
		rest = rest[2:]
		if len(rest) < 2*cnt || ch >= len(p.samples) {
			logger.Warn("truncated curve block for channel %d", ch)
			return
		}
		p.samples[ch] += cnt
		logger.Info("curve ch%d +%d samples (total %d) last=%d",
			ch, cnt, p.samples[ch], binary.BigEndian.Uint16(rest[2*cnt-2:]))
		rest = rest[2*cnt:]
	}
}

func (p *panel) onCopyImage(addr uint16, payload []byte) {
	if len(payload) < 8 {
		return
	}
	xss := binary.BigEndian.Uint16(payload[6:])
	p.mu.Lock()
	changed := xss != p.progress
	p.progress = xss
	p.mu.Unlock()
	if changed {
		logger.Info("progress bar from x=%d", xss)
	}
}

// onUnknown records writes to addresses the panel does not model.
func (p *panel) onUnknown(addr uint16, payload []byte) {
	p.mu.Lock()
	p.unknown++
	p.mu.Unlock()
	logger.Warn("write to unmodeled address %#04x: % X", addr, payload)
}

func (p *panel) onClear(addr uint16, payload []byte) {
	p.mu.Lock()
	p.clears++
	p.samples[dwin.CurveChannelIndex(addr)] = 0
	p.mu.Unlock()
	logger.Info("clear channel %#04x", addr)
}

// route acknowledges each write like the panel does, then dispatches it.
func (p *panel) route(t *dispatch.Table[uint16]) dwin.Router {
	return routerFunc(func(addr uint16, payload []byte) bool {
		if p.ack {
			p.send(dwin.Ack)
		}
		return t.Dispatch(addr, payload)
	})
}

type routerFunc func(addr uint16, payload []byte) bool

func (f routerFunc) Dispatch(addr uint16, payload []byte) bool { return f(addr, payload) }

func (p *panel) send(frame []byte) {
	if p.trace {
		logger.Debug("-> % X", frame)
	}
	if _, err := p.conn.Write(frame); err != nil {
		logger.WithError(err).Warn("write failed")
	}
}

// parseCommand turns one stdin line into an upload frame.
func parseCommand(line string) ([]byte, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	addrs := map[string]uint16{
		"page":  dashboard.AddrPageSelect,
		"mass":  dashboard.AddrMassSlider,
		"slope": dashboard.AddrSlopeSlider,
		"curve": dashboard.AddrCurveButton,
	}
	switch cmd := fields[0]; {
	case cmd == "raw" && len(fields) == 3:
		addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 16)
		if err != nil {
			return nil, fmt.Errorf("bad address %q", fields[1])
		}
		v, err := strconv.ParseUint(fields[2], 0, 16)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", fields[2])
		}
		return dwin.EncodeUpload(uint16(addr), []uint16{uint16(v)}), nil
	case len(fields) == 2 && addrs[cmd] != 0:
		v, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", fields[1])
		}
		return dwin.EncodeUpload(addrs[cmd], []uint16{uint16(v)}), nil
	default:
		return nil, fmt.Errorf("unknown command %q", line)
	}
}

func handleConnection(conn net.Conn, commands <-chan []byte, ack, trace bool) {
	defer conn.Close()
	p, table := newPanel(conn, ack, trace)
	asm := dwin.NewAssembler(p.route(table))

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case frame := <-commands:
				p.send(frame)
			}
		}
	}()

	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			asm.Drain(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				logger.WithError(err).Warn("read failed")
			}
			st := asm.Stats()
			logger.Info("bridge disconnected: %d frames, %d resyncs", st.Frames, st.Resyncs)
			return
		}
	}
}

func listen(network, addr string, connCh chan<- net.Conn) (net.Listener, error) {
	if network == "unix" {
		os.Remove(addr)
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			connCh <- conn
		}
	}()
	return ln, nil
}

func main() {
	socketPath := flag.String("socket", "/tmp/dwin", "Unix socket path (empty to disable)")
	tcpAddr := flag.String("tcp", "", "TCP listen address")
	trace := flag.Bool("trace", false, "Log every frame")
	ack := flag.Bool("ack", true, "Acknowledge writes")
	flag.Parse()

	if *trace {
		logger.SetLevel(log.DEBUG)
	}

	connCh := make(chan net.Conn, 1)
	if *socketPath != "" {
		ln, err := listen("unix", *socketPath, connCh)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating socket: %v\n", err)
			os.Exit(1)
		}
		defer ln.Close()
		defer os.Remove(*socketPath)
		fmt.Printf("Mock display listening on %s\n", *socketPath)
	}
	if *tcpAddr != "" {
		ln, err := listen("tcp", *tcpAddr, connCh)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listening on %s: %v\n", *tcpAddr, err)
			os.Exit(1)
		}
		defer ln.Close()
		fmt.Printf("Mock display listening on tcp %s\n", ln.Addr())
	}
	fmt.Println("Commands: page N | mass N | slope N | curve N | raw ADDR V")

	commands := make(chan []byte, 8)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			frame, err := parseCommand(sc.Text())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if frame != nil {
				commands <- frame
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
			return
		case conn := <-connCh:
			fmt.Println("Bridge connected")
			go handleConnection(conn, commands, *ack, *trace)
		}
	}
}
