package charset

import (
	"unicode"
	"unicode/utf8"
)

const (
	replacementWeight   = 2.0
	controlWeight       = 1.5
	asciiBonus          = 0.05
	asciiBonusThreshold = 0.3
	incoherentPenalty   = 0.6
	ratioPenalty        = 0.3
	mojibakePenalty     = 0.5
	blockChangeLimit    = 0.5
)

// score rates how plausible text is as the decoding of raw under e. Results
// are clamped to [0, 1].
func score(text string, raw []byte, e Encoding) float64 {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return 0
	}

	var bad, controls, printable, ascii int
	for _, r := range runes {
		switch {
		case r == utf8.RuneError || r == 0x00:
			bad++
		case isWhitespace(r):
		case unicode.IsControl(r):
			controls++
		}
		if unicode.IsPrint(r) || isWhitespace(r) {
			printable++
		}
		if r >= 0x20 && r <= 0x7E {
			ascii++
		}
	}

	fn := float64(n)
	s := 1.0
	s -= float64(bad) / fn * replacementWeight
	s -= float64(controls) / fn * controlWeight
	s *= float64(printable) / fn
	if float64(ascii)/fn > asciiBonusThreshold {
		s += asciiBonus
	}

	ratio := fn / float64(len(raw))
	switch {
	case ratio >= 0.45 && ratio <= 0.55 && blockChangeRate(runes) > blockChangeLimit:
		s -= incoherentPenalty
	case ratio < 0.4 && IsMultiByte(e) && (bad > 0 || controls > 0):
		s -= ratioPenalty
	case ratio > 3.0:
		s -= ratioPenalty
	}

	if (e == ISO88591 || e == Windows1252) && hasMojibake(runes) {
		s -= mojibakePenalty
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func isWhitespace(r rune) bool {
	return r == '\n' || r == '\r' || r == '\t' || r == ' '
}

var scripts = []*unicode.RangeTable{
	unicode.Han, unicode.Hangul, unicode.Hiragana, unicode.Katakana,
	unicode.Latin, unicode.Cyrillic, unicode.Greek, unicode.Arabic,
	unicode.Hebrew, unicode.Thai, unicode.Devanagari,
}

// blockOf classifies a letter by script, falling back to a coarse 128 code
// point bucket. Non-letters return -1.
func blockOf(r rune) int {
	if !unicode.IsLetter(r) {
		return -1
	}
	for i, t := range scripts {
		if unicode.Is(t, r) {
			return i
		}
	}
	return len(scripts) + int(r>>7)
}

// blockChangeRate is the fraction of adjacent letters that switch block.
func blockChangeRate(runes []rune) float64 {
	prev := -1
	var letters, changes int
	for _, r := range runes {
		b := blockOf(r)
		if b < 0 {
			continue
		}
		if prev >= 0 && b != prev {
			changes++
		}
		if prev >= 0 {
			letters++
		}
		prev = b
	}
	if letters == 0 {
		return 0
	}
	return float64(changes) / float64(letters)
}

// hasMojibake spots UTF-8 lead bytes C2/C3 rendered as Â/Ã followed by a
// continuation byte rendered through Latin-1 or windows-1252.
func hasMojibake(runes []rune) bool {
	for i := 0; i+1 < len(runes); i++ {
		if runes[i] != 'Ã' && runes[i] != 'Â' {
			continue
		}
		if isContinuationGlyph(runes[i+1]) {
			return true
		}
	}
	return false
}

func isContinuationGlyph(r rune) bool {
	if r >= 0x80 && r <= 0xBF {
		return true
	}
	switch r {
	case 'Œ', 'œ', 'Š', 'š', 'Ÿ', 'Ž', 'ž', 'ƒ', 'ˆ', '˜',
		'‚', '„', '…', '†', '‡', '‰', '‹', '›', '‘', '’', '“', '”', '•', '–', '—', '€', '™':
		return true
	}
	return false
}
