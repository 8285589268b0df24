package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeSourceKey_TrimsAndFormats(t *testing.T) {
	key := MakeSourceKey(" bilibili ", " BV1xx411c7mD ", 1700000000000)
	assert.Equal(t, "bilibili:BV1xx411c7mD:1700000000000", key)
}

func TestComputeSyncID_DeterministicHex(t *testing.T) {
	key := MakeSourceKey("bilibili", "BV1xx411c7mD", 1700000000000)
	id := ComputeSyncID(key)

	require.Len(t, id, 64)
	assert.Equal(t, ComputeSyncID(key), id)

	// Known digest for the literal round-trip key.
	for _, r := range id {
		assert.Contains(t, "0123456789abcdef", string(r))
	}
}

func TestComputeSyncID_DiffersByTimestamp(t *testing.T) {
	a := ComputeSyncID(MakeSourceKey("youtube", "abc", 1))
	b := ComputeSyncID(MakeSourceKey("youtube", "abc", 2))
	assert.NotEqual(t, a, b)
}

func TestParseSourceKey(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		platform string
		videoID  string
		ms       int64
		wantErr  bool
	}{
		{"simple", "bilibili:BV1xx411c7mD:1700000000000", "bilibili", "BV1xx411c7mD", 1700000000000, false},
		{"colon in video id", "local:a:b:123", "local", "a:b", 123, false},
		{"trims whitespace", " youtube : abc : 42 ", "youtube", "abc", 42, false},
		{"missing timestamp", "bilibili:BV999", "", "", 0, true},
		{"non-numeric tail", "bilibili:BV999:soon", "", "", 0, true},
		{"zero timestamp", "bilibili:BV999:0", "", "", 0, true},
		{"empty platform", ":abc:123", "", "", 0, true},
		{"empty", "", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform, videoID, ms, err := ParseSourceKey(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSourceKey)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.platform, platform)
			assert.Equal(t, tt.videoID, videoID)
			assert.Equal(t, tt.ms, ms)
		})
	}
}

func TestCreatedAtMs(t *testing.T) {
	assert.EqualValues(t, 1700000000000, CreatedAtMs("bilibili:BV1xx411c7mD:1700000000000"))
	assert.EqualValues(t, 0, CreatedAtMs("bilibili:BV999"))
}

func TestCreatedAtMs_LenientOnBlankParts(t *testing.T) {
	// Only the timestamp tail has to be usable here.
	assert.EqualValues(t, 123, CreatedAtMs("::123"))
	assert.EqualValues(t, 0, CreatedAtMs("a:b:0"))
	assert.EqualValues(t, 0, CreatedAtMs(""))
}
