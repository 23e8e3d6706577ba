package nalu

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// DefaultMaximumFragmentSize is the default maximum size of a fragment.
const DefaultMaximumFragmentSize = 1100

// Units is an ordered sequence of NAL units.
type Units []Unit

// UnitsFromAccessUnit copies the NALUs of an access unit into units.
func UnitsFromAccessUnit(au [][]byte) Units {
	ret := make(Units, len(au))
	for i, nalu := range au {
		ret[i] = NewUnitFromBytes(nalu)
	}
	return ret
}

// UnitsFromAnnexB splits a Annex-B byte stream into units.
func UnitsFromAnnexB(buf []byte) (Units, error) {
	var au h264.AnnexB
	err := au.Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("unable to split Annex-B stream: %w", err)
	}

	return UnitsFromAccessUnit(au), nil
}

// Append appends units to the sequence.
func (us *Units) Append(units ...Unit) {
	*us = append(*us, units...)
}

// AccessUnit returns the units as a list of NALUs.
// NALUs share memory with units.
func (us Units) AccessUnit() [][]byte {
	ret := make([][]byte, len(us))
	for i, u := range us {
		ret[i] = u
	}
	return ret
}

// MarshalAnnexB encodes units into the Annex-B format.
func (us Units) MarshalAnnexB() ([]byte, error) {
	return h264.AnnexB(us.AccessUnit()).Marshal()
}

// GenerateFragments returns the buffers to send for the units, in order.
// Units that are not bigger than maximumFragmentSize are returned as they are,
// while the others are split into FU-A fragments.
// A non-positive maximumFragmentSize selects DefaultMaximumFragmentSize.
func (us Units) GenerateFragments(maximumFragmentSize int) [][]byte {
	if maximumFragmentSize <= 0 {
		maximumFragmentSize = DefaultMaximumFragmentSize
	}

	ret := make([][]byte, 0, len(us))

	for _, u := range us {
		if u.Len() <= maximumFragmentSize {
			ret = append(ret, u.Bytes())
			continue
		}

		for _, f := range FragmentsFrom(u, maximumFragmentSize) {
			ret = append(ret, f.Bytes())
		}
	}

	return ret
}
