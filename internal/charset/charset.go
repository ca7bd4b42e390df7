// Package charset picks the most plausible character encoding for inbound
// message bytes when the declared data_coding cannot be trusted.
package charset

import "strings"

// Encoding is a canonical encoding name.
type Encoding string

const (
	UTF8        Encoding = "UTF-8"
	UTF16BE     Encoding = "UTF-16BE"
	UTF16LE     Encoding = "UTF-16LE"
	ISO88591    Encoding = "ISO-8859-1"
	Windows1252 Encoding = "windows-1252"
	GSM7        Encoding = "GSM7"
	ASCII       Encoding = "US-ASCII"
	ISO88595    Encoding = "ISO-8859-5"
	ISO88598    Encoding = "ISO-8859-8"
)

var aliases = map[string]Encoding{
	"utf8":         UTF8,
	"utf-8":        UTF8,
	"ucs2":         UTF16BE,
	"ucs-2":        UTF16BE,
	"utf16":        UTF16BE,
	"utf-16":       UTF16BE,
	"utf16be":      UTF16BE,
	"utf-16be":     UTF16BE,
	"utf16le":      UTF16LE,
	"utf-16le":     UTF16LE,
	"latin1":       ISO88591,
	"latin-1":      ISO88591,
	"iso88591":     ISO88591,
	"iso8859-1":    ISO88591,
	"iso-8859-1":   ISO88591,
	"cp1252":       Windows1252,
	"win1252":      Windows1252,
	"windows1252":  Windows1252,
	"windows-1252": Windows1252,
	"gsm":          GSM7,
	"gsm7":         GSM7,
	"gsm-7":        GSM7,
	"gsm0338":      GSM7,
	"ascii":        ASCII,
	"us-ascii":     ASCII,
	"ia5":          ASCII,
	"iso-8859-5":   ISO88595,
	"iso8859-5":    ISO88595,
	"cyrillic":     ISO88595,
	"iso-8859-8":   ISO88598,
	"iso8859-8":    ISO88598,
	"hebrew":       ISO88598,
}

// Normalize maps a user supplied encoding name to its canonical form.
func Normalize(name string) (Encoding, bool) {
	e, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// FromDataCoding maps an SMPP data_coding value to a declared encoding.
func FromDataCoding(dcs byte) Encoding {
	switch dcs {
	case 0x00:
		return GSM7
	case 0x01:
		return ASCII
	case 0x02, 0x03, 0x04:
		return ISO88591
	case 0x06:
		return ISO88595
	case 0x07:
		return ISO88598
	case 0x08:
		return UTF16BE
	}
	// Message class groups: bit 2 selects 8-bit data, otherwise default alphabet.
	if dcs&0xF0 == 0xF0 {
		if dcs&0x04 != 0 {
			return ISO88591
		}
		return GSM7
	}
	// General data coding group: bits 3..2 carry the alphabet.
	if dcs&0xC0 == 0x00 {
		switch (dcs >> 2) & 0x03 {
		case 0x01:
			return ISO88591
		case 0x02:
			return UTF16BE
		}
		return GSM7
	}
	return ISO88591
}

// DataCoding returns the data_coding byte used when sending text in e.
func DataCoding(e Encoding) byte {
	switch e {
	case ASCII:
		return 0x01
	case ISO88591, Windows1252:
		return 0x03
	case ISO88595:
		return 0x06
	case ISO88598:
		return 0x07
	case UTF16BE, UTF16LE:
		return 0x08
	}
	return 0x00
}

// IsMultiByte reports whether e uses more than one byte for some characters.
func IsMultiByte(e Encoding) bool {
	return e == UTF8 || e == UTF16BE || e == UTF16LE
}
