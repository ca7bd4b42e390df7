package segmenter

import (
	"errors"
	"log/slog"
	"unicode/utf16"

	"github.com/linxGnu/gosmpp/data"
)

const (
	// Max lengths per segment, leaving room for a 6 byte UDH in multipart.
	maxGSM7Single    = 160
	maxGSM7Multipart = 153
	maxUCS2Single    = 70
	maxUCS2Multipart = 67
)

var ErrEmptyLimit = errors.New("segmenter: segment limit must be positive")

// Segmenter defines the interface for splitting messages.
type Segmenter interface {
	// GetSegments splits a message, returning segments and indicating if UCS2 encoding is needed.
	GetSegments(message string) (segments []string, requiresUCS2 bool, err error)
}

// DefaultSegmenter splits on GSM 03.38 septets or UTF-16 code units.
type DefaultSegmenter struct{}

// NewDefaultSegmenter creates a basic segmenter.
func NewDefaultSegmenter() *DefaultSegmenter {
	return &DefaultSegmenter{}
}

// IsGSM7 reports whether every character of s has a GSM 03.38 encoding.
func IsGSM7(s string) bool {
	_, err := data.GSM7BIT.Encode(s)
	return err == nil
}

// GetSegments implements the segmentation logic.
func (s *DefaultSegmenter) GetSegments(message string) ([]string, bool, error) {
	if message == "" {
		return []string{""}, false, nil
	}

	if IsGSM7(message) {
		segments, err := splitGSM7(message)
		slog.Debug("Segmented message using GSM7", slog.Int("segments", len(segments)))
		return segments, false, err
	}

	units := utf16.Encode([]rune(message))
	limit := maxUCS2Single
	if len(units) > maxUCS2Single {
		limit = maxUCS2Multipart
	}
	segments, err := splitUTF16(units, limit)
	slog.Debug("Segmented message using UCS2", slog.Int("segments", len(segments)), slog.Int("code_units", len(units)))
	return segments, true, err
}

// splitGSM7 counts extension-table characters as two septets.
func splitGSM7(message string) ([]string, error) {
	runes := []rune(message)
	septets := make([]int, len(runes))
	total := 0
	for i, r := range runes {
		b, _ := data.GSM7BIT.Encode(string(r))
		septets[i] = len(b)
		total += len(b)
	}
	limit := maxGSM7Single
	if total > maxGSM7Single {
		limit = maxGSM7Multipart
	}

	var segments []string
	start, used := 0, 0
	for i := range runes {
		if used+septets[i] > limit {
			segments = append(segments, string(runes[start:i]))
			start, used = i, 0
		}
		used += septets[i]
	}
	segments = append(segments, string(runes[start:]))
	return segments, nil
}

// splitUTF16 never separates a surrogate pair.
func splitUTF16(units []uint16, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, ErrEmptyLimit
	}
	var segments []string
	for pos := 0; pos < len(units); {
		end := pos + limit
		if end >= len(units) {
			end = len(units)
		} else if utf16.IsSurrogate(rune(units[end-1])) && units[end-1] < 0xDC00 {
			end--
		}
		segments = append(segments, string(utf16.Decode(units[pos:end])))
		pos = end
	}
	return segments, nil
}
