package key

import (
	"strings"
	"unicode/utf8"

	"github.com/ryebridge/cobalt/errors"
)

// namedKeys resolves case-insensitive key names used in configuration files
// to their canonical event shape.
var namedKeys = map[string]Event{
	"escape":    {Kind: KindCtrl, Code: "Escape"},
	"esc":       {Kind: KindCtrl, Code: "Escape"},
	"enter":     {Kind: KindCtrl, Code: "Enter"},
	"return":    {Kind: KindCtrl, Code: "Enter"},
	"tab":       {Kind: KindCtrl, Code: "Tab"},
	"backspace": {Kind: KindCtrl, Code: "Backspace"},
	"up":        {Kind: KindNavigation, Code: "Up"},
	"down":      {Kind: KindNavigation, Code: "Down"},
	"left":      {Kind: KindNavigation, Code: "Left"},
	"right":     {Kind: KindNavigation, Code: "Right"},
	"home":      {Kind: KindNavigation, Code: "Home"},
	"end":       {Kind: KindNavigation, Code: "End"},
	"pageup":    {Kind: KindNavigation, Code: "PageUp"},
	"pagedown":  {Kind: KindNavigation, Code: "PageDown"},
	"insert":    {Kind: KindNavigation, Code: "Insert"},
	"delete":    {Kind: KindNavigation, Code: "Delete"},
	"f1":        {Kind: KindFunction, Code: "F1"},
	"f2":        {Kind: KindFunction, Code: "F2"},
	"f3":        {Kind: KindFunction, Code: "F3"},
	"f4":        {Kind: KindFunction, Code: "F4"},
	"f5":        {Kind: KindFunction, Code: "F5"},
	"f6":        {Kind: KindFunction, Code: "F6"},
	"f7":        {Kind: KindFunction, Code: "F7"},
	"f8":        {Kind: KindFunction, Code: "F8"},
	"f9":        {Kind: KindFunction, Code: "F9"},
	"f10":       {Kind: KindFunction, Code: "F10"},
	"f11":       {Kind: KindFunction, Code: "F11"},
	"f12":       {Kind: KindFunction, Code: "F12"},
}

// Parse turns a key specification string from configuration into its
// canonical event shape (Kind and Code; Raw and At stay zero).
//
// Accepted forms:
//   - named keys: "F5", "Up", "Escape", "Enter" (case-insensitive)
//   - control chords: "Ctrl+C", "ctrl+s"
//   - alt chords: "Alt+e", "alt+E"
//   - a single printable character: "a", "?"
func Parse(spec string) (Event, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Event{}, errors.New("empty key specification")
	}

	if ev, ok := namedKeys[strings.ToLower(spec)]; ok {
		return ev, nil
	}

	if i := strings.IndexByte(spec, '+'); i > 0 && i < len(spec)-1 {
		mod, rest := strings.ToLower(spec[:i]), spec[i+1:]
		r, size := utf8.DecodeRuneInString(rest)
		if size != len(rest) {
			return Event{}, errors.New("invalid key specification %q: chord key must be a single character", spec)
		}
		switch mod {
		case "ctrl":
			upper := strings.ToUpper(rest)
			if len(upper) != 1 || upper[0] < 'A' || upper[0] > 'Z' {
				return Event{}, errors.New("invalid key specification %q: Ctrl chords take a letter", spec)
			}
			return Event{Kind: KindCtrl, Code: "Ctrl+" + upper}, nil
		case "alt":
			return Event{Kind: KindAlt, Code: "Alt+" + rest, Rune: r}, nil
		default:
			return Event{}, errors.New("invalid key specification %q: unknown modifier %q", spec, mod)
		}
	}

	r, size := utf8.DecodeRuneInString(spec)
	if size == len(spec) && r != utf8.RuneError {
		return Event{Kind: KindChar, Code: spec, Rune: r}, nil
	}
	return Event{}, errors.New("invalid key specification %q", spec)
}

// MustParse is Parse for known-good literals in initialization code.
func MustParse(spec string) Event {
	ev, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return ev
}
