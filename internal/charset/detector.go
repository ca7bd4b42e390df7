package charset

import (
	"fmt"
)

const (
	// earlyAccept stops candidate evaluation.
	earlyAccept = 0.95
	// minParityUnits is the fewest ASCII-shaped code units that can settle
	// UTF-16 endianness on their own. A single unit such as 00 4E reads
	// equally well as "N" and as U+4E00.
	minParityUnits = 2
	// fallbackConfidence is reported when every candidate failed to decode.
	fallbackConfidence = 0.1
)

// Result is the outcome of a detection.
type Result struct {
	Text       string
	Encoding   Encoding
	Confidence float64
}

// Detector scores candidate decodings of a byte buffer. It holds its own
// decoder tables and is safe for concurrent use.
type Detector struct {
	codecs map[Encoding]codec
}

// NewDetector builds a detector with all supported encodings.
func NewDetector() *Detector {
	return &Detector{codecs: newCodecs()}
}

// Decode returns the best-fit decoding of raw given a declared encoding hint.
func (d *Detector) Decode(raw []byte, declared Encoding) Result {
	if _, ok := d.codecs[declared]; !ok {
		if e, ok := Normalize(string(declared)); ok {
			declared = e
		} else {
			declared = UTF8
		}
	}
	if len(raw) == 0 {
		return Result{Encoding: declared, Confidence: 1.0}
	}

	if declared == UTF16BE || declared == UTF16LE {
		if e, ok := surrogateEndianness(raw); ok {
			return d.overrule(raw, declared, e)
		}
		if e, ok := nullParity(raw); ok {
			return d.overrule(raw, declared, e)
		}
	}

	var best *Result
	for _, e := range candidates(declared) {
		text, err := d.codecs[e].decode(raw)
		if err != nil {
			continue
		}
		s := score(text, raw, e)
		if best == nil || s > best.Confidence {
			best = &Result{Text: text, Encoding: e, Confidence: s}
		}
		if s >= earlyAccept {
			break
		}
	}
	if best == nil {
		text, _ := d.codecs[ISO88591].decode(raw)
		return Result{Text: text, Encoding: ISO88591, Confidence: fallbackConfidence}
	}
	return *best
}

// overrule applies an endianness picked by a structural check unless the
// declared encoding decodes strictly better on its own.
func (d *Detector) overrule(raw []byte, declared, e Encoding) Result {
	forced := d.forced(raw, e)
	if e == declared {
		return forced
	}
	text, err := d.codecs[declared].decode(raw)
	if err != nil {
		return forced
	}
	if s := score(text, raw, declared); s > forced.Confidence {
		return Result{Text: text, Encoding: declared, Confidence: s}
	}
	return forced
}

// forced decodes with an encoding chosen by a structural check.
func (d *Detector) forced(raw []byte, e Encoding) Result {
	text, err := d.codecs[e].decode(raw)
	if err != nil {
		text, _ = d.codecs[ISO88591].decode(raw)
		return Result{Text: text, Encoding: ISO88591, Confidence: fallbackConfidence}
	}
	return Result{Text: text, Encoding: e, Confidence: score(text, raw, e)}
}

// DecodeAs decodes raw strictly as e without scoring.
func (d *Detector) DecodeAs(raw []byte, e Encoding) (string, error) {
	c, ok := d.codecs[e]
	if !ok {
		return "", fmt.Errorf("%w: %s", errUnsupported, e)
	}
	return c.decode(raw)
}

// Encode converts text to bytes in encoding e.
func (d *Detector) Encode(text string, e Encoding) ([]byte, error) {
	c, ok := d.codecs[e]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnsupported, e)
	}
	return c.encode(text)
}

func candidates(declared Encoding) []Encoding {
	switch declared {
	case UTF16BE:
		return []Encoding{UTF16BE, UTF16LE, UTF8, ISO88591}
	case UTF16LE:
		return []Encoding{UTF16LE, UTF16BE, UTF8, ISO88591}
	case UTF8:
		return []Encoding{UTF8, ISO88591, Windows1252}
	case ISO88591:
		return []Encoding{ISO88591, Windows1252, UTF8}
	case Windows1252:
		return []Encoding{Windows1252, ISO88591, UTF8}
	case GSM7:
		return []Encoding{GSM7, ISO88591, UTF8}
	case ASCII:
		return []Encoding{ASCII, ISO88591, UTF8}
	}
	return []Encoding{declared, UTF8, ISO88591}
}

// surrogateEndianness looks for a high surrogate (D8..DB) followed by a low
// surrogate (DC..DF) one code unit later. In big endian the high byte of a
// code unit sits at an even offset, in little endian at an odd one.
func surrogateEndianness(raw []byte) (Encoding, bool) {
	var be, le int
	for i := 0; i+2 < len(raw); i++ {
		if raw[i] >= 0xD8 && raw[i] <= 0xDB && raw[i+2] >= 0xDC && raw[i+2] <= 0xDF {
			if i%2 == 0 {
				be++
			} else {
				le++
			}
		}
	}
	switch {
	case be > 0 && le == 0:
		return UTF16BE, true
	case le > 0 && be == 0:
		return UTF16LE, true
	}
	return "", false
}

// nullParity decides endianness for mostly-ASCII UTF-16. An ASCII code unit
// is a printable byte paired with a zero byte; the zero sits second in LE
// and first in BE. More than half of the code units must have that shape
// on one side, and the other side must be rare.
func nullParity(raw []byte) (Encoding, bool) {
	units := len(raw) / 2
	var le, be int
	for i := 0; i+1 < len(raw); i += 2 {
		a, b := raw[i], raw[i+1]
		switch {
		case b == 0x00 && isASCIIText(a):
			le++
		case a == 0x00 && isASCIIText(b):
			be++
		}
	}
	switch {
	case le >= minParityUnits && le*2 > units && le > be*4:
		return UTF16LE, true
	case be >= minParityUnits && be*2 > units && be > le*4:
		return UTF16BE, true
	}
	return "", false
}

func isASCIIText(b byte) bool {
	return (b >= 0x20 && b <= 0x7E) || b == '\n' || b == '\r' || b == '\t'
}
