// Package h264 - minimal Annex B scanner for access units coming from the camera
package h264

const (
	NALUTypePFrame = 1 // Coded slice of a non-IDR picture
	NALUTypeIFrame = 5 // Coded slice of an IDR picture
	NALUTypeSEI    = 6 // Supplemental enhancement information (SEI)
	NALUTypeSPS    = 7 // Sequence parameter set
	NALUTypePPS    = 8 // Picture parameter set
	NALUTypeAUD    = 9 // Access unit delimiter
)

// Split - NAL units of one Annex B access unit without start codes.
// Both 3 and 4 byte start codes are accepted. Data before the first start
// code is ignored.
func Split(b []byte) [][]byte {
	var units [][]byte

	start := -1

	for i := 0; i+2 < len(b); {
		if b[i] != 0 || b[i+1] != 0 || b[i+2] != 1 {
			i++
			continue
		}

		if start >= 0 {
			end := i
			// 4 byte start code
			if end > start && b[end-1] == 0 {
				end--
			}
			units = append(units, b[start:end])
		}

		i += 3
		start = i
	}

	if start >= 0 && start < len(b) {
		units = append(units, b[start:])
	}

	return units
}

func NALUType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

// IsKeyframe - check if any NALU in one AU is Keyframe
func IsKeyframe(b []byte) bool {
	for _, nalu := range Split(b) {
		switch NALUType(nalu) {
		case NALUTypePFrame:
			return false
		case NALUTypeIFrame:
			return true
		}
	}
	return false
}

// Types - NALU types of one AU, for logs
func Types(b []byte) []byte {
	units := Split(b)
	types := make([]byte, 0, len(units))
	for _, nalu := range units {
		types = append(types, NALUType(nalu))
	}
	return types
}
