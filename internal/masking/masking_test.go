package masking

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhone_MasksMiddleDigits(t *testing.T) {
	assert.Equal(t, "+123****6789", Phone("+123456789"))
	assert.Equal(t, "+447****7890", Phone("+447654567890"))
}

func TestPhone_LeavesNonMatchingInputUnchanged(t *testing.T) {
	assert.Equal(t, "not-a-phone", Phone("not-a-phone"))
}

func TestHexHash_MasksMiddleCharacters(t *testing.T) {
	hash := "abcd1234abcd1234abcd1234abcd1234"
	assert.Equal(t, "abcd****1234", HexHash(hash))
}

func TestHexHash_LeavesShortStringsUnchanged(t *testing.T) {
	assert.Equal(t, "short", HexHash("short"))
}

func TestValue_LogValueMasks(t *testing.T) {
	v := PhoneValue("+123456789")
	assert.Equal(t, "+123****6789", v.LogValue().String())
	assert.Equal(t, slog.KindString, v.LogValue().Kind())
}
