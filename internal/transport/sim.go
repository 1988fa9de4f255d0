package transport

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// SimKnownWords are the commands the simulator accepts without an
// unknown-command report.
var SimKnownWords = []string{
	"G0", "G1", "G4", "G21", "G28", "G90", "G91", "G92",
	"M17", "M18", "M82", "M83", "M84", "M104", "M105", "M106", "M107",
	"M109", "M110", "M114", "M115", "M140", "M190", "M300", "M400", "M999",
}

const simAmbient = 20.0

// Sim is an in-process stand-in for a Marlin controller. It acknowledges
// every line immediately, reports telemetry for M105 and position for M114,
// and echoes "Unknown command" for words outside its vocabulary.
type Sim struct {
	mu      sync.Mutex
	cond    *sync.Cond
	out     []string
	written []string
	closed  bool
	partial string

	known   map[string]bool
	axes    [4]float64 // X Y Z E
	hotend  [2]float64 // current, target
	bed     [2]float64
	silence bool
}

// NewSim returns a simulator that has just booted and announced "start".
func NewSim() *Sim {
	s := &Sim{
		known:  make(map[string]bool, len(SimKnownWords)),
		hotend: heatTo(0),
		bed:    heatTo(0),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, w := range SimKnownWords {
		s.known[w] = true
	}
	s.out = append(s.out, "start")
	return s
}

// Silence stops the simulator from replying until Resume is called. Lines
// are still recorded.
func (s *Sim) Silence() {
	s.mu.Lock()
	s.silence = true
	s.mu.Unlock()
}

// Resume re-enables replies.
func (s *Sim) Resume() {
	s.mu.Lock()
	s.silence = false
	s.mu.Unlock()
}

// Inject queues an unsolicited device line.
func (s *Sim) Inject(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, lines...)
	s.cond.Broadcast()
}

// Written returns every line received so far, without terminators.
func (s *Sim) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func (s *Sim) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("sim: write on closed transport")
	}
	buf := s.partial + string(p)
	lines := strings.Split(buf, "\n")
	s.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		line = strings.TrimRight(line, "\r")
		s.written = append(s.written, line)
		if !s.silence {
			s.out = append(s.out, s.respond(line)...)
		}
	}
	s.cond.Broadcast()
	return len(p), nil
}

func (s *Sim) ReadLine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.out) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.out) == 0 {
		return "", fmt.Errorf("%w (sim closed)", ErrDisconnected)
	}
	line := s.out[0]
	s.out = s.out[1:]
	return line, nil
}

// Close unblocks pending reads. Queued output is still delivered first.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}

func (s *Sim) respond(line string) []string {
	code, _, _ := strings.Cut(line, ";")
	fields := strings.Fields(code)
	if len(fields) == 0 {
		return []string{"ok"}
	}
	word := strings.ToUpper(fields[0])
	if !s.known[word] {
		return []string{fmt.Sprintf("echo:Unknown command: \"%s\"", strings.TrimSpace(code)), "ok"}
	}

	params := make(map[byte]float64, len(fields)-1)
	for _, f := range fields[1:] {
		if len(f) < 2 {
			continue
		}
		if v, err := strconv.ParseFloat(f[1:], 64); err == nil {
			params[strings.ToUpper(f[:1])[0]] = v
		}
	}

	switch word {
	case "G0", "G1", "G92":
		for i, axis := range []byte("XYZE") {
			if v, ok := params[axis]; ok {
				s.axes[i] = v
			}
		}
	case "G28":
		s.axes = [4]float64{}
	case "M104", "M109":
		s.hotend = heatTo(params['S'])
	case "M140", "M190":
		s.bed = heatTo(params['S'])
	case "M105":
		return []string{"ok " + s.temperatures()}
	case "M114":
		return []string{s.position(), "ok"}
	}
	return []string{"ok"}
}

func (s *Sim) temperatures() string {
	return fmt.Sprintf("T:%.2f /%.2f B:%.2f /%.2f @:0 B@:0",
		s.hotend[0], s.hotend[1], s.bed[0], s.bed[1])
}

func (s *Sim) position() string {
	return fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f E:%.2f Count X:%d Y:%d Z:%d",
		s.axes[0], s.axes[1], s.axes[2], s.axes[3],
		int(s.axes[0]*80), int(s.axes[1]*80), int(s.axes[2]*400))
}

// heatTo settles a heater instantly; it never cools below ambient.
func heatTo(target float64) [2]float64 {
	return [2]float64{max(target, simAmbient), target}
}
