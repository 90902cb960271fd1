package sma_multicast

import "bytes"

const (
	MARKER_SIZE         = 4
	MARKER_VALUE_OFFSET = 4
	MARKER_VALUE_LENGTH = 4
)

type Channel int

const (
	CHANNEL_3PHASE Channel = iota
	CHANNEL_L1
	CHANNEL_L2
	CHANNEL_L3
)

var Channels = [...]Channel{CHANNEL_3PHASE, CHANNEL_L1, CHANNEL_L2, CHANNEL_L3}

func (c Channel) String() string {
	switch c {
	case CHANNEL_3PHASE:
		return "3phase"
	case CHANNEL_L1:
		return "L1"
	case CHANNEL_L2:
		return "L2"
	case CHANNEL_L3:
		return "L3"
	}
	return "unknown"
}

// MarkerSpec locates one value field: the field starts Offset bytes after
// the first occurrence of Pattern and is Length bytes long.
type MarkerSpec struct {
	Name    string
	Pattern [MARKER_SIZE]byte
	Offset  int
	Length  int
}

type MarkerPair struct {
	Positive MarkerSpec
	Negative MarkerSpec
}

var channelMarkers = [...]MarkerPair{
	CHANNEL_3PHASE: {
		Positive: marker("power3f_pos", 0x00, 0x01, 0x04, 0x00),
		Negative: marker("power3f_neg", 0x00, 0x02, 0x04, 0x00),
	},
	CHANNEL_L1: {
		Positive: marker("powerL1_pos", 0x00, 0x15, 0x04, 0x00),
		Negative: marker("powerL1_neg", 0x00, 0x16, 0x04, 0x00),
	},
	CHANNEL_L2: {
		Positive: marker("powerL2_pos", 0x00, 0x29, 0x04, 0x00),
		Negative: marker("powerL2_neg", 0x00, 0x2A, 0x04, 0x00),
	},
	CHANNEL_L3: {
		Positive: marker("powerL3_pos", 0x00, 0x3D, 0x04, 0x00),
		Negative: marker("powerL3_neg", 0x00, 0x3E, 0x04, 0x00),
	},
}

// ChannelMarkers returns a copy of the marker pair of a channel.
func ChannelMarkers(c Channel) (MarkerPair, bool) {
	if c < 0 || int(c) >= len(channelMarkers) {
		return MarkerPair{}, false
	}
	return channelMarkers[c], true
}

// FindMarker returns the offset of the first byte-aligned occurrence of
// marker in data.
func FindMarker(data []byte, marker [MARKER_SIZE]byte) (int, bool) {
	if len(data) < MARKER_SIZE {
		return 0, false
	}
	idx := bytes.Index(data, marker[:])
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

func marker(name string, b0, b1, b2, b3 byte) MarkerSpec {
	return MarkerSpec{
		Name:    name,
		Pattern: [MARKER_SIZE]byte{b0, b1, b2, b3},
		Offset:  MARKER_VALUE_OFFSET,
		Length:  MARKER_VALUE_LENGTH,
	}
}
