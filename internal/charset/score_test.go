package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorePenalisesReplacementAndControls(t *testing.T) {
	clean := score("hello", []byte("hello"), UTF8)
	broken := score("he�lo", []byte("he\xfflo"), UTF8)
	ctrl := score("he\x01lo", []byte("he\x01lo"), UTF8)

	assert.Equal(t, 1.0, clean)
	assert.Less(t, broken, clean)
	assert.Less(t, ctrl, clean)
}

func TestScoreIncoherentHalfRatio(t *testing.T) {
	// Alternating scripts at two bytes per character looks like a wrong
	// endianness decode.
	text := "aбaбaбaб"
	raw := make([]byte, len([]rune(text))*2)
	assert.Less(t, score(text, raw, UTF16BE), 0.5)
}

func TestBlockChangeRate(t *testing.T) {
	assert.Equal(t, 0.0, blockChangeRate([]rune("hello world")))
	assert.Equal(t, 1.0, blockChangeRate([]rune("aбaб")))
	assert.Equal(t, 0.0, blockChangeRate([]rune("1 2 3")))
}

func TestSurrogateAndNullChecks(t *testing.T) {
	e, ok := surrogateEndianness([]byte{0xD8, 0x3D, 0xDE, 0x00})
	assert.True(t, ok)
	assert.Equal(t, UTF16BE, e)

	_, ok = surrogateEndianness([]byte{0x00, 0x41})
	assert.False(t, ok)

	e, ok = nullParity([]byte{0x00, 'h', 0x00, 'i'})
	assert.True(t, ok)
	assert.Equal(t, UTF16BE, e)

	_, ok = nullParity([]byte{0x4F, 0x60, 0x59, 0x7D})
	assert.False(t, ok)
}
