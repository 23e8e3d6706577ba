package rtph264

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"

	"github.com/rtcstream/h264frag/pkg/liberrors"
	"github.com/rtcstream/h264frag/pkg/nalu"
)

// ErrMorePacketsNeeded is returned when more packets are needed.
var ErrMorePacketsNeeded = errors.New("need more packets")

// ErrNonStartingPacketAndNoPrevious is returned when we received a non-starting
// packet of a fragmented NALU and we didn't received anything before.
// It's normal to receive this when decoding a stream that has been already
// running for some time.
var ErrNonStartingPacketAndNoPrevious = errors.New(
	"received a non-starting fragment without any previous starting fragment")

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// Decoder is a RTP/H264 decoder.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
type Decoder struct {
	firstPacketReceived bool
	fragments           []nalu.FragmentA
	fragmentsSize       int
	fragmentNextSeqNum  uint16

	// for Decode()
	frameBuffer     [][]byte
	frameBufferLen  int
	frameBufferSize int
}

// Init initializes the decoder.
func (d *Decoder) Init() error {
	return nil
}

func (d *Decoder) resetFragments() {
	d.fragments = d.fragments[:0]
	d.fragmentsSize = 0
}

func (d *Decoder) decodeFragment(pkt *rtp.Packet) ([][]byte, error) {
	f, err := nalu.ParseFragmentA(pkt.Payload)
	if err != nil {
		d.resetFragments()
		return nil, err
	}

	fh := f.FragmentHeader()

	if fh.IsStart() {
		d.resetFragments()
		d.firstPacketReceived = true

		// RFC 6184 forbids setting both the start and end bit, but some
		// cameras emit a single fragment for small NALUs.
		if fh.IsEnd() {
			u := nalu.NewUnit(len(f)-2, false)
			u.SetForbiddenBit(f.ForbiddenBit())
			u.SetNRI(f.NRI())
			u.SetUnitType(f.UnitType())
			copy(u[1:], f[2:])
			return [][]byte{u}, nil
		}

		// payloads can be reused by the caller
		d.fragments = append(d.fragments, append(nalu.FragmentA(nil), f...))
		d.fragmentsSize = len(f) - 1
		d.fragmentNextSeqNum = pkt.SequenceNumber + 1
		return nil, ErrMorePacketsNeeded
	}

	if d.fragmentsSize == 0 {
		if !d.firstPacketReceived {
			return nil, ErrNonStartingPacketAndNoPrevious
		}

		return nil, fmt.Errorf("invalid FU-A packet (non-starting)")
	}

	if pkt.SequenceNumber != d.fragmentNextSeqNum {
		expected := d.fragmentNextSeqNum
		d.resetFragments()
		return nil, liberrors.ErrFragmentMissing{Expected: expected, Received: pkt.SequenceNumber}
	}

	d.fragmentsSize += len(f) - 2

	if d.fragmentsSize > h264.MaxAccessUnitSize {
		d.resetFragments()
		return nil, fmt.Errorf("NALU size (%d) is too big, maximum is %d", d.fragmentsSize, h264.MaxAccessUnitSize)
	}

	d.fragments = append(d.fragments, append(nalu.FragmentA(nil), f...))
	d.fragmentNextSeqNum++

	if !fh.IsEnd() {
		return nil, ErrMorePacketsNeeded
	}

	u, err := nalu.JoinFragments(d.fragments)
	d.resetFragments()
	if err != nil {
		return nil, err
	}

	return [][]byte{u}, nil
}

func (d *Decoder) decodeAggregated(pkt *rtp.Packet) ([][]byte, error) {
	payload := pkt.Payload[1:]
	var nalus [][]byte

	for {
		if len(payload) < 2 {
			return nil, fmt.Errorf("invalid STAP-A packet (invalid size)")
		}

		size := uint16(payload[0])<<8 | uint16(payload[1])
		payload = payload[2:]

		// discard padding
		if size == 0 && isAllZero(payload) {
			break
		}

		if int(size) > len(payload) {
			return nil, fmt.Errorf("invalid STAP-A packet (invalid size)")
		}

		nalus = append(nalus, payload[:size])
		payload = payload[size:]

		if len(payload) == 0 {
			break
		}
	}

	if nalus == nil {
		return nil, fmt.Errorf("STAP-A packet doesn't contain any NALU")
	}

	return nalus, nil
}

func (d *Decoder) decodeNALUs(pkt *rtp.Packet) ([][]byte, error) {
	if len(pkt.Payload) < 1 {
		d.resetFragments()
		return nil, fmt.Errorf("payload is too short")
	}

	typ := nalu.Header(pkt.Payload[0]).NALUType()

	switch typ {
	case h264.NALUTypeFUA:
		return d.decodeFragment(pkt)

	case h264.NALUTypeSTAPA:
		d.resetFragments()
		d.firstPacketReceived = true
		return d.decodeAggregated(pkt)

	case h264.NALUTypeSTAPB, h264.NALUTypeMTAP16,
		h264.NALUTypeMTAP24, h264.NALUTypeFUB:
		d.resetFragments()
		d.firstPacketReceived = true
		return nil, fmt.Errorf("packet type not supported (%v)", typ)
	}

	d.resetFragments()
	d.firstPacketReceived = true
	return [][]byte{pkt.Payload}, nil
}

// Decode decodes an access unit from a RTP packet.
// It returns ErrMorePacketsNeeded until the packet with the marker bit is received.
func (d *Decoder) Decode(pkt *rtp.Packet) ([][]byte, error) {
	nalus, err := d.decodeNALUs(pkt)
	if err != nil {
		return nil, err
	}
	l := len(nalus)

	if (d.frameBufferLen + l) > h264.MaxNALUsPerAccessUnit {
		d.resetFrameBuffer()
		return nil, fmt.Errorf("NALU count exceeds maximum allowed (%d)",
			h264.MaxNALUsPerAccessUnit)
	}

	addSize := 0

	for _, n := range nalus {
		addSize += len(n)
	}

	if (d.frameBufferSize + addSize) > h264.MaxAccessUnitSize {
		size := d.frameBufferSize + addSize
		d.resetFrameBuffer()
		return nil, fmt.Errorf("access unit size (%d) is too big, maximum is %d",
			size, h264.MaxAccessUnitSize)
	}

	d.frameBuffer = append(d.frameBuffer, nalus...)
	d.frameBufferLen += l
	d.frameBufferSize += addSize

	if !pkt.Marker {
		return nil, ErrMorePacketsNeeded
	}

	ret := d.frameBuffer

	// do not reuse frameBuffer to avoid race conditions
	d.resetFrameBuffer()

	return ret, nil
}

func (d *Decoder) resetFrameBuffer() {
	d.frameBuffer = nil
	d.frameBufferLen = 0
	d.frameBufferSize = 0
}
