package key

import (
	"fmt"
	"time"
)

// Kind classifies a decoded key event.
type Kind int

const (
	// KindUnknown marks bytes the decoder could not interpret. The raw
	// bytes are preserved on the event for diagnostics.
	KindUnknown Kind = iota
	// KindChar is a printable character, including multi-byte UTF-8.
	KindChar
	// KindCtrl is a control combination (Ctrl+A..Ctrl+Z and friends) or a
	// named control key such as Enter, Tab, Backspace or a literal Escape.
	KindCtrl
	// KindAlt is an Alt (Meta) chord: ESC followed by a printable byte.
	KindAlt
	// KindFunction is one of F1..F12.
	KindFunction
	// KindNavigation covers arrows, Home/End, paging, Insert and Delete.
	KindNavigation
)

func (k Kind) String() string {
	switch k {
	case KindChar:
		return "char"
	case KindCtrl:
		return "ctrl"
	case KindAlt:
		return "alt"
	case KindFunction:
		return "function"
	case KindNavigation:
		return "navigation"
	default:
		return "unknown"
	}
}

// Event is a single decoded key press. Events are immutable once emitted:
// the decoder never retains or mutates an event after handing it out.
type Event struct {
	Kind Kind
	// Code is the canonical identifier used for binding lookups, e.g.
	// "a", "Ctrl+C", "Alt+e", "F5", "Up", "Escape".
	Code string
	// Rune is the decoded character for KindChar events.
	Rune rune
	// Raw holds the bytes that produced this event.
	Raw []byte
	// At is when the first byte of the event was observed.
	At time.Time
}

// String returns the canonical code, which is stable for use in logs.
func (e Event) String() string { return e.Code }

// Equal compares kind and code, ignoring timestamps and raw bytes.
func (e Event) Equal(other Event) bool {
	return e.Kind == other.Kind && e.Code == other.Code && e.Rune == other.Rune
}

// controlCodes maps C0 control bytes to their canonical identifiers.
// Escape (0x1b) is absent: it opens an escape sequence instead.
var controlCodes = map[byte]string{
	0x00: "Ctrl+@",
	0x08: "Backspace", // Ctrl+H
	0x09: "Tab",       // Ctrl+I
	0x0d: "Enter",     // Ctrl+M
	0x1c: "Ctrl+\\",
	0x1d: "Ctrl+]",
	0x1e: "Ctrl+^",
	0x1f: "Ctrl+_",
	0x7f: "Backspace",
}

// controlCode resolves any byte below 0x20 (or DEL) to its identifier.
func controlCode(b byte) string {
	if code, ok := controlCodes[b]; ok {
		return code
	}
	if b >= 0x01 && b <= 0x1a {
		return fmt.Sprintf("Ctrl+%c", 'A'+b-1)
	}
	return fmt.Sprintf("Ctrl+0x%02x", b)
}

// sequences maps escape-sequence bodies (everything after the leading ESC)
// to key identifiers. CSI entries start with '[', SS3 entries with 'O'.
var sequences = map[string]struct {
	kind Kind
	code string
}{
	// Arrows.
	"[A": {KindNavigation, "Up"},
	"[B": {KindNavigation, "Down"},
	"[C": {KindNavigation, "Right"},
	"[D": {KindNavigation, "Left"},
	"OA": {KindNavigation, "Up"},
	"OB": {KindNavigation, "Down"},
	"OC": {KindNavigation, "Right"},
	"OD": {KindNavigation, "Left"},

	// Navigation block.
	"[H":  {KindNavigation, "Home"},
	"[F":  {KindNavigation, "End"},
	"[1~": {KindNavigation, "Home"},
	"[4~": {KindNavigation, "End"},
	"[2~": {KindNavigation, "Insert"},
	"[3~": {KindNavigation, "Delete"},
	"[5~": {KindNavigation, "PageUp"},
	"[6~": {KindNavigation, "PageDown"},

	// Function keys. F1-F4 arrive as SS3 on most terminals and as CSI
	// 11~..14~ on older ones.
	"OP":   {KindFunction, "F1"},
	"OQ":   {KindFunction, "F2"},
	"OR":   {KindFunction, "F3"},
	"OS":   {KindFunction, "F4"},
	"[11~": {KindFunction, "F1"},
	"[12~": {KindFunction, "F2"},
	"[13~": {KindFunction, "F3"},
	"[14~": {KindFunction, "F4"},
	"[15~": {KindFunction, "F5"},
	"[17~": {KindFunction, "F6"},
	"[18~": {KindFunction, "F7"},
	"[19~": {KindFunction, "F8"},
	"[20~": {KindFunction, "F9"},
	"[21~": {KindFunction, "F10"},
	"[23~": {KindFunction, "F11"},
	"[24~": {KindFunction, "F12"},

	// Modified arrows (xterm parameter 3 = Alt, 5 = Ctrl).
	"[1;3A": {KindNavigation, "Alt+Up"},
	"[1;3B": {KindNavigation, "Alt+Down"},
	"[1;3C": {KindNavigation, "Alt+Right"},
	"[1;3D": {KindNavigation, "Alt+Left"},
	"[1;5A": {KindNavigation, "Ctrl+Up"},
	"[1;5B": {KindNavigation, "Ctrl+Down"},
	"[1;5C": {KindNavigation, "Ctrl+Right"},
	"[1;5D": {KindNavigation, "Ctrl+Left"},
}
