// Package nalu contains utilities to handle H264 NAL units and FU-A fragments.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
package nalu

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// Header is the one-byte header of a NAL unit.
//
//	+---------------+
//	|0|1|2|3|4|5|6|7|
//	+-+-+-+-+-+-+-+-+
//	|F|NRI|  Type   |
//	+---------------+
type Header byte

// ForbiddenBit returns the forbidden_zero_bit.
func (h Header) ForbiddenBit() bool {
	return h>>7 != 0
}

// NRI returns the nal_ref_idc.
func (h Header) NRI() uint8 {
	return uint8(h>>5) & 0x03
}

// UnitType returns the NAL unit type.
func (h Header) UnitType() uint8 {
	return uint8(h) & 0x1F
}

// NALUType returns the NAL unit type as a h264.NALUType.
func (h Header) NALUType() h264.NALUType {
	return h264.NALUType(h.UnitType())
}

// SetForbiddenBit sets the forbidden_zero_bit.
func (h *Header) SetForbiddenBit(isSet bool) {
	*h = (*h & 0x7F) | Header(boolBit(isSet)<<7)
}

// SetNRI sets the nal_ref_idc. Values wider than 2 bits are truncated.
func (h *Header) SetNRI(nri uint8) {
	*h = (*h & 0x9F) | Header((nri&0x03)<<5)
}

// SetUnitType sets the NAL unit type. Values wider than 5 bits are truncated.
func (h *Header) SetUnitType(typ uint8) {
	*h = (*h & 0xE0) | Header(typ&0x1F)
}

func (h Header) String() string {
	return fmt.Sprintf("F=%v NRI=%d Type=%v", h.ForbiddenBit(), h.NRI(), h.NALUType())
}

// FragmentHeader is the FU header that follows the FU indicator in a FU-A fragment.
//
//	+---------------+
//	|0|1|2|3|4|5|6|7|
//	+-+-+-+-+-+-+-+-+
//	|S|E|R|  Type   |
//	+---------------+
type FragmentHeader byte

// IsStart returns the start bit.
func (h FragmentHeader) IsStart() bool {
	return h>>7 != 0
}

// IsEnd returns the end bit.
func (h FragmentHeader) IsEnd() bool {
	return (h>>6)&0x01 != 0
}

// ReservedBit returns the reserved bit, which must be ignored by receivers.
func (h FragmentHeader) ReservedBit() bool {
	return (h>>5)&0x01 != 0
}

// UnitType returns the type of the fragmented NAL unit.
func (h FragmentHeader) UnitType() uint8 {
	return uint8(h) & 0x1F
}

// SetStart sets the start bit.
func (h *FragmentHeader) SetStart(isSet bool) {
	*h = (*h & 0x7F) | FragmentHeader(boolBit(isSet)<<7)
}

// SetEnd sets the end bit.
func (h *FragmentHeader) SetEnd(isSet bool) {
	*h = (*h & 0xBF) | FragmentHeader(boolBit(isSet)<<6)
}

// SetReservedBit sets the reserved bit.
func (h *FragmentHeader) SetReservedBit(isSet bool) {
	*h = (*h & 0xDF) | FragmentHeader(boolBit(isSet)<<5)
}

// SetUnitType sets the type of the fragmented NAL unit.
// Values wider than 5 bits are truncated.
func (h *FragmentHeader) SetUnitType(typ uint8) {
	*h = (*h & 0xE0) | FragmentHeader(typ&0x1F)
}

func (h FragmentHeader) String() string {
	return fmt.Sprintf("S=%v E=%v R=%v Type=%v",
		h.IsStart(), h.IsEnd(), h.ReservedBit(), h264.NALUType(h.UnitType()))
}

func boolBit(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
