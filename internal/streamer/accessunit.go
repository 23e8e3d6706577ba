package streamer

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/rtcstream/h264frag/pkg/nalu"
)

func isVCL(typ h264.NALUType) bool {
	return typ >= h264.NALUTypeNonIDR && typ <= h264.NALUTypeIDR
}

// startsAccessUnit checks whether u opens a new access unit,
// given that the pending access unit already contains a VCL unit.
// Specification: ITU-T H.264, 7.4.1.2.3
func startsAccessUnit(u nalu.Unit) bool {
	typ := u.Header().NALUType()

	switch {
	case typ == h264.NALUTypeAccessUnitDelimiter,
		typ == h264.NALUTypeSPS,
		typ == h264.NALUTypePPS,
		typ == h264.NALUTypeSEI,
		typ >= h264.NALUTypePrefix && typ <= h264.NALUTypeReserved18:
		return true

	case isVCL(typ):
		// first_mb_in_slice is coded as ue(v) and is zero only when the first bit is set
		return len(u) >= 2 && (u[1]&0x80) != 0
	}

	return false
}

// accessUnitSplitter groups units into access units.
type accessUnitSplitter struct {
	pending nalu.Units
	hasVCL  bool
}

// push adds a unit and returns the previous access unit when u starts a new one.
func (s *accessUnitSplitter) push(u nalu.Unit) nalu.Units {
	var ret nalu.Units

	if s.hasVCL && startsAccessUnit(u) {
		ret = s.flush()
	}

	s.pending.Append(u)
	if isVCL(u.Header().NALUType()) {
		s.hasVCL = true
	}

	return ret
}

// flush returns the pending access unit.
func (s *accessUnitSplitter) flush() nalu.Units {
	ret := s.pending
	s.pending = nil
	s.hasVCL = false
	return ret
}
