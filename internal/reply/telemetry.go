package reply

import (
	"fmt"
	"strconv"
	"strings"
)

// Heater is one temperature channel from a report.
type Heater struct {
	Label     string
	Current   float64
	Target    float64
	HasTarget bool
	// Power is the raw heater output as reported after "@:" (0-127 on Marlin).
	Power    int
	HasPower bool
}

// Telemetry is a parsed temperature report, heaters in report order.
type Telemetry struct {
	Heaters []Heater
}

// Heater returns the channel with the given label.
func (t *Telemetry) Heater(label string) (Heater, bool) {
	if t == nil {
		return Heater{}, false
	}
	for _, h := range t.Heaters {
		if h.Label == label {
			return h, true
		}
	}
	return Heater{}, false
}

// ParseTelemetry parses a report such as "T:20/0 B:60/60 @:0 B@:0" or the
// Marlin spacing "T:20.00 /0.00 B:60.00 /60.00 @:0 B@:0". "@:" is the power
// of the hotend "T" (or the first heater when there is no T); "L@:" is the
// power of heater L and "@N:" the power of hotend TN. Wait-time fields ("W:") are ignored. Any non-numeric
// value fails the whole report.
func ParseTelemetry(s string) (*Telemetry, error) {
	t := &Telemetry{}
	index := map[string]int{}
	powers := map[string]int{}
	var powerOrder []string

	last := -1
	for _, tok := range strings.Fields(s) {
		if rest, ok := strings.CutPrefix(tok, "/"); ok {
			if last < 0 {
				return nil, fmt.Errorf("target %q without heater", tok)
			}
			target, err := parseFloat(rest)
			if err != nil {
				return nil, fmt.Errorf("heater %s target: %w", t.Heaters[last].Label, err)
			}
			t.Heaters[last].Target = target
			t.Heaters[last].HasTarget = true
			continue
		}

		label, value, ok := strings.Cut(tok, ":")
		if !ok || label == "" {
			return nil, fmt.Errorf("malformed telemetry field %q", tok)
		}

		switch {
		case label == "W":
			continue
		case strings.HasSuffix(label, "@"), strings.HasPrefix(label, "@"):
			p, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("power %q: %w", tok, err)
			}
			owner := strings.TrimSuffix(label, "@")
			if n, ok := strings.CutPrefix(label, "@"); ok && n != "" {
				// "@N:" is the power of hotend TN.
				owner = "T" + n
			}
			if _, seen := powers[owner]; !seen {
				powerOrder = append(powerOrder, owner)
			}
			powers[owner] = p
			continue
		}

		h := Heater{Label: label}
		current, target, hasTarget := strings.Cut(value, "/")
		var err error
		if h.Current, err = parseFloat(current); err != nil {
			return nil, fmt.Errorf("heater %s current: %w", label, err)
		}
		if hasTarget {
			if h.Target, err = parseFloat(target); err != nil {
				return nil, fmt.Errorf("heater %s target: %w", label, err)
			}
			h.HasTarget = true
		}

		if i, dup := index[label]; dup {
			t.Heaters[i] = h
			last = i
			continue
		}
		index[label] = len(t.Heaters)
		last = len(t.Heaters)
		t.Heaters = append(t.Heaters, h)
	}

	if len(t.Heaters) == 0 {
		return nil, fmt.Errorf("no heaters in %q", s)
	}

	for _, owner := range powerOrder {
		i, ok := index[owner]
		if owner == "" {
			i, ok = index["T"]
			if !ok {
				i, ok = 0, true
			}
		}
		if !ok {
			continue
		}
		t.Heaters[i].Power = powers[owner]
		t.Heaters[i].HasPower = true
	}
	return t, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}
