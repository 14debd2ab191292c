package key

import (
	"time"
	"unicode/utf8"
)

// decoder states. Escape handling is an explicit state machine: bytes arrive
// incrementally and a sequence may be split across reads, so the decoder never
// buffers more than the sequence currently in flight.
type state int

const (
	stateIdle state = iota
	stateEscape
	stateCSI
	stateSS3
)

// maxSequenceLen bounds how long a CSI body may grow before the decoder
// gives up and surfaces the bytes as a single unknown event.
const maxSequenceLen = 32

// Decoder turns a raw terminal byte stream into key events. It is pure: the
// only side effect is calling emit, and it needs no terminal to run against.
//
// The decoder does not own a timer. Whoever feeds it is responsible for
// calling Flush when no byte follows a pending escape within the
// disambiguation window (see console.escapeTimeout); Pending reports whether
// such a window is open.
type Decoder struct {
	emit func(Event)
	now  func() time.Time

	st    state
	seq   []byte // in-flight escape bytes, including the leading ESC
	seqAt time.Time

	utf8Buf []byte // in-flight UTF-8 code point
	utf8Rem int    // continuation bytes still expected
}

// NewDecoder creates a decoder that delivers events to emit, in byte-arrival
// order, on the goroutine that calls Feed or Flush.
func NewDecoder(emit func(Event)) *Decoder {
	return &Decoder{emit: emit, now: time.Now}
}

// Feed decodes a chunk of input bytes. Chunk boundaries carry no meaning;
// splitting a sequence across Feed calls yields the same events.
func (d *Decoder) Feed(p []byte) {
	for _, b := range p {
		d.feedByte(b)
	}
}

// Pending reports whether an escape sequence or UTF-8 code point is in
// flight, i.e. whether a later Flush could still emit an event.
func (d *Decoder) Pending() bool {
	return d.st != stateIdle || d.utf8Rem > 0
}

// Flush force-terminates any in-flight sequence. A lone ESC becomes a
// literal Escape event; anything longer is surfaced as unknown with its raw
// bytes intact. Callers invoke this on the escape disambiguation timeout and
// when stdin ownership is handed to a foreground reader.
func (d *Decoder) Flush() {
	if d.utf8Rem > 0 {
		d.emitUnknown(d.utf8Buf)
		d.utf8Buf, d.utf8Rem = nil, 0
	}
	switch d.st {
	case stateIdle:
		return
	case stateEscape:
		if len(d.seq) == 1 {
			d.emitSeq(Event{Kind: KindCtrl, Code: "Escape"})
			return
		}
	}
	d.emitUnknown(d.seq)
	d.seq, d.st = nil, stateIdle
}

func (d *Decoder) feedByte(b byte) {
	// UTF-8 continuation collection runs independently of escape parsing;
	// a control or escape byte mid-code-point aborts the code point.
	if d.utf8Rem > 0 {
		if b >= 0x80 && b <= 0xbf {
			d.utf8Buf = append(d.utf8Buf, b)
			d.utf8Rem--
			if d.utf8Rem == 0 {
				d.finishUTF8()
			}
			return
		}
		d.emitUnknown(d.utf8Buf)
		d.utf8Buf, d.utf8Rem = nil, 0
		// Fall through: b starts something new.
	}

	switch d.st {
	case stateIdle:
		d.idleByte(b)
	case stateEscape:
		d.escapeByte(b)
	case stateCSI:
		d.csiByte(b)
	case stateSS3:
		d.ss3Byte(b)
	}
}

func (d *Decoder) idleByte(b byte) {
	switch {
	case b == 0x1b:
		d.st = stateEscape
		d.seq = append(d.seq[:0], b)
		d.seqAt = d.now()
	case b < 0x20 || b == 0x7f:
		d.emit(Event{Kind: KindCtrl, Code: controlCode(b), Raw: []byte{b}, At: d.now()})
	case b < 0x80:
		d.emit(Event{Kind: KindChar, Code: string(rune(b)), Rune: rune(b), Raw: []byte{b}, At: d.now()})
	case b >= 0xc0 && b <= 0xdf:
		d.startUTF8(b, 1)
	case b >= 0xe0 && b <= 0xef:
		d.startUTF8(b, 2)
	case b >= 0xf0 && b <= 0xf7:
		d.startUTF8(b, 3)
	default:
		// Stray continuation byte or invalid lead.
		d.emitUnknown([]byte{b})
	}
}

func (d *Decoder) escapeByte(b byte) {
	switch {
	case b == '[':
		d.st = stateCSI
		d.seq = append(d.seq, b)
	case b == 'O':
		d.st = stateSS3
		d.seq = append(d.seq, b)
	case b == 0x1b:
		// ESC ESC: the first is a literal Escape, the second reopens
		// the disambiguation window.
		d.emitSeq(Event{Kind: KindCtrl, Code: "Escape"})
		d.st = stateEscape
		d.seq = append(d.seq[:0], b)
		d.seqAt = d.now()
	case b >= 0x20 && b < 0x7f:
		d.seq = append(d.seq, b)
		d.emitSeq(Event{Kind: KindAlt, Code: "Alt+" + string(rune(b)), Rune: rune(b)})
	default:
		// Control byte right after ESC: emit the Escape, then let the
		// byte take its normal path.
		d.emitSeq(Event{Kind: KindCtrl, Code: "Escape"})
		d.feedByte(b)
	}
}

func (d *Decoder) csiByte(b byte) {
	if b < 0x20 {
		// A control byte cannot appear inside a CSI body; the sequence
		// is malformed. Surface it, then reprocess the byte.
		d.emitUnknown(d.seq)
		d.seq, d.st = nil, stateIdle
		d.feedByte(b)
		return
	}
	d.seq = append(d.seq, b)
	if b >= 0x40 && b <= 0x7e {
		d.finishSequence()
		return
	}
	if len(d.seq) > maxSequenceLen {
		d.emitUnknown(d.seq)
		d.seq, d.st = nil, stateIdle
	}
}

func (d *Decoder) ss3Byte(b byte) {
	if b < 0x40 || b > 0x7e {
		// Not a valid SS3 final byte; the sequence is malformed. Surface
		// it, then reprocess the byte on its own.
		d.emitUnknown(d.seq)
		d.seq, d.st = nil, stateIdle
		d.feedByte(b)
		return
	}
	d.seq = append(d.seq, b)
	d.finishSequence()
}

// finishSequence resolves a terminated escape sequence against the static
// table. Unrecognized sequences are never dropped silently.
func (d *Decoder) finishSequence() {
	body := string(d.seq[1:])
	if m, ok := sequences[body]; ok {
		d.emitSeq(Event{Kind: m.kind, Code: m.code})
		return
	}
	d.emitUnknown(d.seq)
	d.seq, d.st = nil, stateIdle
}

func (d *Decoder) startUTF8(b byte, rem int) {
	d.utf8Buf = append(d.utf8Buf[:0], b)
	d.utf8Rem = rem
	d.seqAt = d.now()
}

func (d *Decoder) finishUTF8() {
	raw := make([]byte, len(d.utf8Buf))
	copy(raw, d.utf8Buf)
	d.utf8Buf = nil

	r, size := utf8.DecodeRune(raw)
	if r == utf8.RuneError && size <= 1 {
		d.emitUnknown(raw)
		return
	}
	d.emit(Event{Kind: KindChar, Code: string(r), Rune: r, Raw: raw, At: d.now()})
}

// emitSeq emits an event whose bytes are the in-flight escape sequence and
// resets the machine to idle.
func (d *Decoder) emitSeq(ev Event) {
	ev.Raw = make([]byte, len(d.seq))
	copy(ev.Raw, d.seq)
	ev.At = d.seqAt
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	d.seq, d.st = nil, stateIdle
	d.emit(ev)
}

// emitUnknown surfaces undecodable bytes. Callers reset their own state;
// this only copies and emits.
func (d *Decoder) emitUnknown(raw []byte) {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	d.emit(Event{Kind: KindUnknown, Code: "Unknown", Raw: cp, At: d.now()})
}
