package h264

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	b := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, // SPS with 4 byte start code
		0x00, 0x00, 0x01, 0x68, 0xCE, // PPS with 3 byte start code
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, // IDR
	}

	units := Split(b)
	require.Equal(t, [][]byte{
		{0x67, 0x42},
		{0x68, 0xCE},
		{0x65, 0x88, 0x84},
	}, units)

	require.Equal(t, []byte{NALUTypeSPS, NALUTypePPS, NALUTypeIFrame}, Types(b))
	require.True(t, IsKeyframe(b))
}

func TestSplitNoStartCode(t *testing.T) {
	require.Nil(t, Split(nil))
	require.Nil(t, Split([]byte{0x65, 0x88}))
	require.False(t, IsKeyframe([]byte{0x65, 0x88}))
}

func TestIsKeyframe(t *testing.T) {
	pframe := []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xF0, 0x00, 0x00, 0x01, 0x41, 0x9A}
	require.False(t, IsKeyframe(pframe))
	require.Equal(t, []byte{NALUTypeAUD, NALUTypePFrame}, Types(pframe))

	sei := []byte{0x00, 0x00, 0x01, 0x06, 0x05}
	require.False(t, IsKeyframe(sei))
}
