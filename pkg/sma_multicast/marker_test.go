package sma_multicast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindMarker(t *testing.T) {

	assert := assert.New(t)

	marker := [MARKER_SIZE]byte{0x00, 0x01, 0x04, 0x00}

	cases := []struct {
		name   string
		data   []byte
		offset int
		found  bool
	}{
		{"nil", nil, 0, false},
		{"empty", []byte{}, 0, false},
		{"shorter than marker", []byte{0x00, 0x01, 0x04}, 0, false},
		{"exact", []byte{0x00, 0x01, 0x04, 0x00}, 0, true},
		{"at end", []byte{0xAA, 0xBB, 0x00, 0x01, 0x04, 0x00}, 2, true},
		{"absent", []byte{0x00, 0x02, 0x04, 0x00, 0x00, 0x01, 0x04, 0x01}, 0, false},
		{"first of two", []byte{0xFF, 0x00, 0x01, 0x04, 0x00, 0x00, 0x01, 0x04, 0x00}, 1, true},
		{"overlapping prefix", []byte{0x00, 0x00, 0x01, 0x04, 0x00}, 1, true},
		// hex text "A00010400B" holds "00010400" at an odd nibble index
		{"nibble shifted", []byte{0xA0, 0x00, 0x10, 0x40, 0x0B}, 0, false},
	}

	for _, c := range cases {
		offset, found := FindMarker(c.data, marker)
		assert.Equal(c.found, found, c.name)
		if c.found {
			assert.Equal(c.offset, offset, c.name)
		}
	}
}

func TestChannelMarkers(t *testing.T) {

	assert := assert.New(t)

	expected := map[Channel][2][MARKER_SIZE]byte{
		CHANNEL_3PHASE: {{0x00, 0x01, 0x04, 0x00}, {0x00, 0x02, 0x04, 0x00}},
		CHANNEL_L1:     {{0x00, 0x15, 0x04, 0x00}, {0x00, 0x16, 0x04, 0x00}},
		CHANNEL_L2:     {{0x00, 0x29, 0x04, 0x00}, {0x00, 0x2A, 0x04, 0x00}},
		CHANNEL_L3:     {{0x00, 0x3D, 0x04, 0x00}, {0x00, 0x3E, 0x04, 0x00}},
	}

	for _, c := range Channels {
		pair, ok := ChannelMarkers(c)
		assert.True(ok, c.String())
		assert.Equal(expected[c][0], pair.Positive.Pattern, c.String())
		assert.Equal(expected[c][1], pair.Negative.Pattern, c.String())
		assert.Equal(4, pair.Positive.Offset)
		assert.Equal(4, pair.Positive.Length)
		assert.Equal(4, pair.Negative.Offset)
		assert.Equal(4, pair.Negative.Length)
	}

	_, ok := ChannelMarkers(Channel(4))
	assert.False(ok)
	_, ok = ChannelMarkers(Channel(-1))
	assert.False(ok)
}

func TestChannelMarkersIsACopy(t *testing.T) {

	pair, _ := ChannelMarkers(CHANNEL_L1)
	pair.Positive.Pattern[1] = 0xFF

	again, _ := ChannelMarkers(CHANNEL_L1)
	assert.Equal(t, byte(0x15), again.Positive.Pattern[1])
}
