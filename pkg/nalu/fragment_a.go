package nalu

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// FragmentType is the position of a FU-A fragment inside a fragmented NAL unit.
type FragmentType int

// fragment types.
const (
	FragmentTypeStart FragmentType = iota
	FragmentTypeMiddle
	FragmentTypeEnd
)

var fragmentTypeLabels = map[FragmentType]string{
	FragmentTypeStart:  "start",
	FragmentTypeMiddle: "middle",
	FragmentTypeEnd:    "end",
}

// String implements fmt.Stringer.
func (t FragmentType) String() string {
	if l, ok := fragmentTypeLabels[t]; ok {
		return l
	}
	return fmt.Sprintf("unknown (%d)", int(t))
}

// FragmentA is a FU-A fragment of a NAL unit.
//
//	+---------------+---------------+------------
//	| FU indicator  |   FU header   | payload ...
//	+---------------+---------------+------------
//
// The FU indicator is a NAL header of type 28, carrying F and NRI of the
// fragmented unit. The FU header carries the type of the fragmented unit.
type FragmentA []byte

// NewFragmentA allocates a fragment.
func NewFragmentA(typ FragmentType, forbiddenBit bool, nri uint8, unitType uint8, payload []byte) FragmentA {
	f := make(FragmentA, 2+len(payload))

	var ind Header
	ind.SetForbiddenBit(forbiddenBit)
	ind.SetNRI(nri)
	ind.SetUnitType(uint8(h264.NALUTypeFUA))
	f[0] = byte(ind)

	var fh FragmentHeader
	fh.SetUnitType(unitType)
	f[1] = byte(fh)

	f.SetFragmentType(typ)
	copy(f[2:], payload)

	return f
}

// ParseFragmentA validates a FU-A fragment received from the network.
// The returned fragment shares memory with b.
func ParseFragmentA(b []byte) (FragmentA, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("invalid FU-A fragment (invalid size)")
	}

	if typ := Header(b[0]).NALUType(); typ != h264.NALUTypeFUA {
		return nil, fmt.Errorf("invalid FU-A fragment (indicator type is %v)", typ)
	}

	return FragmentA(b), nil
}

// Bytes returns the raw content of the fragment.
func (f FragmentA) Bytes() []byte {
	return f
}

// Indicator returns the FU indicator.
func (f FragmentA) Indicator() Header {
	f.mustHaveHeaders()
	return Header(f[0])
}

// FragmentHeader returns the FU header.
func (f FragmentA) FragmentHeader() FragmentHeader {
	f.mustHaveHeaders()
	return FragmentHeader(f[1])
}

// ForbiddenBit returns the forbidden_zero_bit of the FU indicator.
func (f FragmentA) ForbiddenBit() bool {
	return f.Indicator().ForbiddenBit()
}

// NRI returns the nal_ref_idc of the FU indicator.
func (f FragmentA) NRI() uint8 {
	return f.Indicator().NRI()
}

// UnitType returns the type of the fragmented unit, that is stored in the FU header.
func (f FragmentA) UnitType() uint8 {
	return f.FragmentHeader().UnitType()
}

// SetUnitType sets the type of the fragmented unit.
func (f FragmentA) SetUnitType(typ uint8) {
	fh := f.FragmentHeader()
	fh.SetUnitType(typ)
	f[1] = byte(fh)
}

// Type returns the position of the fragment.
func (f FragmentA) Type() FragmentType {
	fh := f.FragmentHeader()

	switch {
	case fh.IsStart():
		return FragmentTypeStart

	case fh.IsEnd():
		return FragmentTypeEnd

	default:
		return FragmentTypeMiddle
	}
}

// SetFragmentType sets the start and end bits of the FU header.
func (f FragmentA) SetFragmentType(typ FragmentType) {
	fh := f.FragmentHeader()
	fh.SetStart(typ == FragmentTypeStart)
	fh.SetEnd(typ == FragmentTypeEnd)
	f[1] = byte(fh)
}

// Payload returns a copy of the bytes that follow the FU header.
func (f FragmentA) Payload() []byte {
	f.mustHaveHeaders()
	ret := make([]byte, len(f)-2)
	copy(ret, f[2:])
	return ret
}

// SetPayload replaces the bytes that follow the FU header.
func (f *FragmentA) SetPayload(payload []byte) {
	f.mustHaveHeaders()
	n := make(FragmentA, 2+len(payload))
	copy(n, (*f)[:2])
	copy(n[2:], payload)
	*f = n
}

func (f FragmentA) mustHaveHeaders() {
	if len(f) < 2 {
		panic("nalu: FU-A fragment is shorter than its headers")
	}
}

func fragmentCount(avail int, le int) int {
	n := le / avail
	if (le % avail) != 0 {
		n++
	}
	return n
}

// FragmentsFrom splits a unit into FU-A fragments.
// maximumFragmentSize is the maximum size of each fragment, FU indicator and FU header included.
//
// The unit must not fit into a single fragment: callers decide whether to fragment,
// as Units.GenerateFragments does.
func FragmentsFrom(u Unit, maximumFragmentSize int) []FragmentA {
	if maximumFragmentSize <= 2 {
		panic(fmt.Sprintf("nalu: maximum fragment size (%d) leaves no room for payload", maximumFragmentSize))
	}

	h := u.Header()
	payload := u[1:]
	avail := maximumFragmentSize - 2

	if len(payload) == 0 {
		panic("nalu: cannot fragment a unit without payload")
	}

	n := fragmentCount(avail, len(payload))
	if n < 2 {
		panic(fmt.Sprintf("nalu: unit of size %d fits into a single fragment of size %d",
			u.Len(), maximumFragmentSize))
	}

	ret := make([]FragmentA, n)

	for i := range ret {
		le := avail
		typ := FragmentTypeMiddle

		switch i {
		case 0:
			typ = FragmentTypeStart

		case n - 1:
			typ = FragmentTypeEnd
			le = len(payload)
		}

		ret[i] = NewFragmentA(typ, h.ForbiddenBit(), h.NRI(), h.UnitType(), payload[:le])
		payload = payload[le:]
	}

	return ret
}

// JoinFragments rebuilds the unit that has been split into the given fragments.
func JoinFragments(frags []FragmentA) (Unit, error) {
	if len(frags) < 2 {
		return nil, fmt.Errorf("a fragmented unit needs at least 2 fragments, got %d", len(frags))
	}

	size := 1
	for i, f := range frags {
		if len(f) < 2 {
			return nil, fmt.Errorf("fragment %d is too short", i)
		}

		expected := FragmentTypeMiddle
		switch i {
		case 0:
			expected = FragmentTypeStart

		case len(frags) - 1:
			expected = FragmentTypeEnd
		}

		if typ := f.Type(); typ != expected {
			return nil, fmt.Errorf("fragment %d is a %v fragment, expected %v", i, typ, expected)
		}

		if f.UnitType() != frags[0].UnitType() {
			return nil, fmt.Errorf("fragment %d carries unit type %d, expected %d",
				i, f.UnitType(), frags[0].UnitType())
		}

		size += len(f) - 2
	}

	u := make(Unit, 1, size)

	var h Header
	h.SetForbiddenBit(frags[0].ForbiddenBit())
	h.SetNRI(frags[0].NRI())
	h.SetUnitType(frags[0].UnitType())
	u[0] = byte(h)

	for _, f := range frags {
		u = append(u, f[2:]...)
	}

	return u, nil
}
