// Package widget implements the lora list widgets of the node-graph editor: the
// two-way sync between the prompt text and the structured lora list, strength
// adjustment and trigger word propagation. Everything except Propagator is pure.
package widget

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Lora is one entry of a lora list widget.
type Lora struct {
	Name         string  `json:"name"`
	Strength     float64 `json:"strength"`
	ClipStrength float64 `json:"clipStrength"`
	Active       bool    `json:"active"`
}

// LoraPattern matches <lora:name:strength> and <lora:name:strength:clipStrength>.
var LoraPattern = regexp.MustCompile(`<lora:([^:]+):([-\d\.]+)(?::([-\d\.]+))?>`)

var whitespace = regexp.MustCompile(`\s+`)

var leadingNumber = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)

func leadingFloat(s string) (float64, bool) {
	n := leadingNumber.FindString(s)
	if n == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(n, 64)
	return f, err == nil
}

const (
	minStrength  = -10.0
	maxStrength  = 10.0
	minScale     = 0.01
	maxScale     = 3.0
	dragPerPixel = 0.01
)

// ParseLoras returns the tags in text in order. A name that appears twice keeps its
// first occurrence. A strength is read up to its first invalid character, so
// "1.2.3" reads as 1.2; tags whose strength has no leading number, like "-" or "..",
// are skipped, and an unreadable clip strength falls back to the strength.
func ParseLoras(text string) []Lora {
	var out []Lora
	seen := make(map[string]bool)
	for _, m := range LoraPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		strength, ok := leadingFloat(m[2])
		if !ok {
			continue
		}
		clip := strength
		if c, ok := leadingFloat(m[3]); ok {
			clip = c
		}
		seen[name] = true
		out = append(out, Lora{Name: name, Strength: strength, ClipStrength: clip, Active: true})
	}
	return out
}

// MergeLoras rebuilds the list from text. Names already in existing keep their
// strengths and active flag; new names take the values written in the tag. Names
// missing from text are dropped.
func MergeLoras(text string, existing []Lora) []Lora {
	prior := make(map[string]Lora, len(existing))
	for _, l := range existing {
		if _, ok := prior[l.Name]; !ok {
			prior[l.Name] = l
		}
	}
	parsed := ParseLoras(text)
	for i, l := range parsed {
		if p, ok := prior[l.Name]; ok {
			parsed[i] = p
		}
	}
	return parsed
}

// FormatLoras renders entries as tags. The clip strength is written only when it
// differs from the model strength.
func FormatLoras(entries []Lora) string {
	tags := make([]string, 0, len(entries))
	for _, l := range entries {
		tag := "<lora:" + l.Name + ":" + formatStrength(l.Strength)
		if round2(l.ClipStrength) != round2(l.Strength) {
			tag += ":" + formatStrength(l.ClipStrength)
		}
		tags = append(tags, tag+">")
	}
	return strings.Join(tags, " ")
}

func formatStrength(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', 2, 64)
}

// SyncText removes from text every tag whose name is not in entries and collapses
// runs of whitespace.
func SyncText(text string, entries []Lora) string {
	keep := make(map[string]bool, len(entries))
	for _, l := range entries {
		keep[l.Name] = true
	}
	out := LoraPattern.ReplaceAllStringFunc(text, func(tag string) string {
		m := LoraPattern.FindStringSubmatch(tag)
		if keep[m[1]] {
			return tag
		}
		return ""
	})
	return strings.TrimSpace(whitespace.ReplaceAllString(out, " "))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// AdjustStrength returns the strength after dragging dx pixels from initial.
func AdjustStrength(initial, dx float64) float64 {
	return round2(clamp(initial+dx*dragPerPixel, minStrength, maxStrength))
}

// ScaleAllStrengths scales the strengths captured at the start of a header drag by a
// factor derived from the drag distance.
func ScaleAllStrengths(initial []Lora, dx float64) []Lora {
	factor := clamp(1+dx*dragPerPixel, minScale, maxScale)
	out := make([]Lora, len(initial))
	for i, l := range initial {
		l.Strength = round2(clamp(l.Strength*factor, minStrength, maxStrength))
		l.ClipStrength = round2(clamp(l.ClipStrength*factor, minStrength, maxStrength))
		out[i] = l
	}
	return out
}

// ToggleActive flips the active flag of name.
func ToggleActive(entries []Lora, name string) []Lora {
	out := append([]Lora(nil), entries...)
	for i := range out {
		if out[i].Name == name {
			out[i].Active = !out[i].Active
		}
	}
	return out
}

func SetAllActive(entries []Lora, active bool) []Lora {
	out := append([]Lora(nil), entries...)
	for i := range out {
		out[i].Active = active
	}
	return out
}

// SetStrength sets the model strength of name, clamped to the allowed range.
func SetStrength(entries []Lora, name string, strength float64) []Lora {
	out := append([]Lora(nil), entries...)
	for i := range out {
		if out[i].Name == name {
			out[i].Strength = round2(clamp(strength, minStrength, maxStrength))
		}
	}
	return out
}

func RemoveLora(entries []Lora, name string) []Lora {
	out := make([]Lora, 0, len(entries))
	for _, l := range entries {
		if l.Name != name {
			out = append(out, l)
		}
	}
	return out
}

// ActiveNames lists the names of active entries in order.
func ActiveNames(entries []Lora) []string {
	var names []string
	for _, l := range entries {
		if l.Active {
			names = append(names, l.Name)
		}
	}
	return names
}
