// Package rtph264 contains a RTP/H264 encoder and decoder.
package rtph264

import (
	"crypto/rand"

	"github.com/pion/rtp"

	"github.com/rtcstream/h264frag/pkg/liberrors"
	"github.com/rtcstream/h264frag/pkg/nalu"
)

const (
	rtpVersion = 2

	// ClockRate is the clock rate of H264 RTP timestamps.
	ClockRate = 90000
)

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Encoder is a RTP/H264 encoder.
// NALUs that do not fit into a packet are split into FU-A fragments.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
type Encoder struct {
	// payload type of packets.
	PayloadType uint8

	// SSRC of packets (optional).
	// It defaults to a random value.
	SSRC *uint32

	// initial sequence number of packets (optional).
	// It defaults to a random value.
	InitialSequenceNumber *uint16

	// maximum size of packet payloads (optional).
	// It defaults to 1100.
	PayloadMaxSize int

	sequenceNumber uint16
}

// Init initializes the encoder.
func (e *Encoder) Init() error {
	if e.PayloadMaxSize == 0 {
		e.PayloadMaxSize = nalu.DefaultMaximumFragmentSize
	}
	if e.PayloadMaxSize <= 2 {
		return liberrors.ErrInvalidFragmentSize{Size: e.PayloadMaxSize}
	}

	if e.SSRC == nil {
		v, err := randUint32()
		if err != nil {
			return err
		}
		e.SSRC = &v
	}
	if e.InitialSequenceNumber == nil {
		v, err := randUint32()
		if err != nil {
			return err
		}
		v2 := uint16(v)
		e.InitialSequenceNumber = &v2
	}

	e.sequenceNumber = *e.InitialSequenceNumber
	return nil
}

// Encode encodes an access unit into RTP/H264 packets.
// The marker bit is set on the last packet; timestamps are left to the caller.
func (e *Encoder) Encode(au [][]byte) ([]*rtp.Packet, error) {
	for _, n := range au {
		if len(n) == 0 {
			return nil, liberrors.ErrEmptyNALU{}
		}
	}

	bufs := nalu.UnitsFromAccessUnit(au).GenerateFragments(e.PayloadMaxSize)
	ret := make([]*rtp.Packet, len(bufs))

	for i, buf := range bufs {
		ret[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        rtpVersion,
				PayloadType:    e.PayloadType,
				SequenceNumber: e.sequenceNumber,
				SSRC:           *e.SSRC,
				Marker:         i == len(bufs)-1,
			},
			Payload: buf,
		}
		e.sequenceNumber++
	}

	return ret, nil
}
