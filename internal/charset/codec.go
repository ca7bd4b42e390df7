package charset

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/linxGnu/gosmpp/data"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var errUnsupported = errors.New("charset: unsupported encoding")

type codec interface {
	decode(b []byte) (string, error)
	encode(s string) ([]byte, error)
}

// textCodec adapts an x/text encoding.
type textCodec struct {
	enc encoding.Encoding
}

func (c textCodec) decode(b []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c textCodec) encode(s string) ([]byte, error) {
	return c.enc.NewEncoder().Bytes([]byte(s))
}

// smppCodec adapts a gosmpp data coding. The GSM 03.38 table panics on some
// malformed input, so decode recovers.
type smppCodec struct {
	enc data.Encoding
}

func (c smppCodec) decode(b []byte) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("charset: gsm7 decode: %v", r)
		}
	}()
	for _, x := range b {
		if x > 0x7F {
			return "", fmt.Errorf("charset: byte 0x%02X outside GSM 7-bit range", x)
		}
	}
	return c.enc.Decode(b)
}

func (c smppCodec) encode(s string) ([]byte, error) {
	return c.enc.Encode(s)
}

// asciiCodec replaces every byte above 0x7F with U+FFFD. x/text has no
// strict US-ASCII charmap.
type asciiCodec struct{}

func (asciiCodec) decode(b []byte) (string, error) {
	out := make([]rune, len(b))
	for i, x := range b {
		if x > 0x7F {
			out[i] = utf8.RuneError
			continue
		}
		out[i] = rune(x)
	}
	return string(out), nil
}

func (asciiCodec) encode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0x7F {
			return nil, fmt.Errorf("charset: %q not representable in US-ASCII", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

func newCodecs() map[Encoding]codec {
	return map[Encoding]codec{
		UTF8:        textCodec{enc: unicode.UTF8},
		UTF16BE:     textCodec{enc: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
		UTF16LE:     textCodec{enc: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
		ISO88591:    textCodec{enc: charmap.ISO8859_1},
		Windows1252: textCodec{enc: charmap.Windows1252},
		ISO88595:    textCodec{enc: charmap.ISO8859_5},
		ISO88598:    textCodec{enc: charmap.ISO8859_8},
		GSM7:        smppCodec{enc: data.GSM7BIT},
		ASCII:       asciiCodec{},
	}
}
