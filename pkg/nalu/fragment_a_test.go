package nalu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeUnit(hdr byte, payloadSize int) Unit {
	u := NewUnit(payloadSize, false)
	u[0] = hdr
	for i := 1; i < len(u); i++ {
		u[i] = byte(i)
	}
	return u
}

func TestNewFragmentA(t *testing.T) {
	for _, ca := range []struct {
		name string
		typ  FragmentType
		byts []byte
	}{
		{"start", FragmentTypeStart, []byte{0x7c, 0x85, 0x01, 0x02}},
		{"middle", FragmentTypeMiddle, []byte{0x7c, 0x05, 0x01, 0x02}},
		{"end", FragmentTypeEnd, []byte{0x7c, 0x45, 0x01, 0x02}},
	} {
		t.Run(ca.name, func(t *testing.T) {
			f := NewFragmentA(ca.typ, false, 3, 5, []byte{0x01, 0x02})
			require.Equal(t, ca.byts, f.Bytes())
			require.Equal(t, ca.typ, f.Type())
			require.Equal(t, uint8(5), f.UnitType())
			require.Equal(t, uint8(28), f.Indicator().UnitType())
			require.Equal(t, uint8(3), f.NRI())
			require.Equal(t, false, f.ForbiddenBit())
			require.Equal(t, []byte{0x01, 0x02}, f.Payload())
		})
	}
}

func TestFragmentASetters(t *testing.T) {
	f := NewFragmentA(FragmentTypeStart, true, 1, 1, []byte{0x01})

	f.SetFragmentType(FragmentTypeEnd)
	require.Equal(t, FragmentTypeEnd, f.Type())
	require.Equal(t, false, f.FragmentHeader().IsStart())

	f.SetFragmentType(FragmentTypeMiddle)
	require.Equal(t, FragmentTypeMiddle, f.Type())

	f.SetUnitType(7)
	require.Equal(t, uint8(7), f.UnitType())
	require.Equal(t, uint8(28), f.Indicator().UnitType())

	f.SetPayload([]byte{0x0a, 0x0b, 0x0c})
	require.Equal(t, []byte{0xbc, 0x07, 0x0a, 0x0b, 0x0c}, f.Bytes())
}

func TestParseFragmentA(t *testing.T) {
	f, err := ParseFragmentA([]byte{0x7c, 0x85, 0x01})
	require.NoError(t, err)
	require.Equal(t, FragmentTypeStart, f.Type())

	_, err = ParseFragmentA([]byte{0x7c})
	require.EqualError(t, err, "invalid FU-A fragment (invalid size)")

	_, err = ParseFragmentA([]byte{0x65, 0x85})
	require.EqualError(t, err, "invalid FU-A fragment (indicator type is IDR)")
}

func TestFragmentsFrom(t *testing.T) {
	u := makeUnit(0x65, 2500)

	frags := FragmentsFrom(u, 1100)
	require.Len(t, frags, 3)

	var sizes []int
	var types []FragmentType
	var joined []byte

	for _, f := range frags {
		sizes = append(sizes, len(f.Payload()))
		types = append(types, f.Type())
		joined = append(joined, f.Payload()...)

		require.Equal(t, uint8(28), f.Indicator().UnitType())
		require.Equal(t, u.UnitType(), f.UnitType())
		require.Equal(t, u.NRI(), f.NRI())
		require.Equal(t, u.ForbiddenBit(), f.ForbiddenBit())
		require.LessOrEqual(t, len(f), 1100)
	}

	require.Equal(t, []int{1098, 1098, 304}, sizes)
	require.Equal(t, []FragmentType{FragmentTypeStart, FragmentTypeMiddle, FragmentTypeEnd}, types)
	require.Equal(t, u.Payload(), joined)
}

func TestFragmentsFromProperties(t *testing.T) {
	for _, maxSize := range []int{3, 4, 10, 100, 1100, 1460} {
		for _, payloadSize := range []int{maxSize - 1, maxSize, maxSize + 1, 3*maxSize - 7, 5000} {
			if payloadSize <= maxSize-2 {
				continue
			}

			u := makeUnit(0xE1, payloadSize)
			frags := FragmentsFrom(u, maxSize)

			avail := maxSize - 2
			require.Len(t, frags, (payloadSize+avail-1)/avail)

			starts, ends := 0, 0
			var joined []byte
			for i, f := range frags {
				require.LessOrEqual(t, len(f.Payload()), avail)
				require.NotEmpty(t, f.Payload())

				switch f.Type() {
				case FragmentTypeStart:
					require.Equal(t, 0, i)
					starts++
				case FragmentTypeEnd:
					require.Equal(t, len(frags)-1, i)
					ends++
				}
				require.False(t, f.FragmentHeader().IsStart() && f.FragmentHeader().IsEnd())

				joined = append(joined, f.Payload()...)
			}

			require.Equal(t, 1, starts)
			require.Equal(t, 1, ends)
			require.Equal(t, u.Payload(), joined)

			rebuilt, err := JoinFragments(frags)
			require.NoError(t, err)
			require.Equal(t, u, rebuilt)
		}
	}
}

func TestFragmentsFromDoesNotAliasSource(t *testing.T) {
	u := makeUnit(0x65, 50)
	frags := FragmentsFrom(u, 20)
	u[1] = 0xFF
	require.Equal(t, byte(1), frags[0][2])
}

func TestFragmentsFromPreconditions(t *testing.T) {
	require.Panics(t, func() { FragmentsFrom(makeUnit(0x65, 10), 2) })
	require.Panics(t, func() { FragmentsFrom(makeUnit(0x65, 0), 10) })
	require.Panics(t, func() { FragmentsFrom(makeUnit(0x65, 8), 10) })
	require.Panics(t, func() { FragmentsFrom(Unit{}, 10) })
}

func TestJoinFragmentsErrors(t *testing.T) {
	start := NewFragmentA(FragmentTypeStart, false, 3, 5, []byte{1})
	middle := NewFragmentA(FragmentTypeMiddle, false, 3, 5, []byte{2})
	end := NewFragmentA(FragmentTypeEnd, false, 3, 5, []byte{3})
	otherEnd := NewFragmentA(FragmentTypeEnd, false, 3, 1, []byte{3})

	for _, ca := range []struct {
		name  string
		frags []FragmentA
		err   string
	}{
		{
			"single",
			[]FragmentA{start},
			"a fragmented unit needs at least 2 fragments, got 1",
		},
		{
			"missing start",
			[]FragmentA{middle, end},
			"fragment 0 is a middle fragment, expected start",
		},
		{
			"missing end",
			[]FragmentA{start, middle},
			"fragment 1 is a middle fragment, expected end",
		},
		{
			"type mismatch",
			[]FragmentA{start, otherEnd},
			"fragment 1 carries unit type 1, expected 5",
		},
		{
			"too short",
			[]FragmentA{start, {0x7c}},
			"fragment 1 is too short",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, err := JoinFragments(ca.frags)
			require.EqualError(t, err, ca.err)
		})
	}

	u, err := JoinFragments([]FragmentA{start, middle, end})
	require.NoError(t, err)
	require.Equal(t, Unit{0x65, 1, 2, 3}, u)
}

func TestFragmentTypeString(t *testing.T) {
	require.Equal(t, "start", FragmentTypeStart.String())
	require.Equal(t, "middle", FragmentTypeMiddle.String())
	require.Equal(t, "end", FragmentTypeEnd.String())
	require.Equal(t, "unknown (7)", FragmentType(7).String())
}

func BenchmarkFragmentsFrom(b *testing.B) {
	u := NewUnitFromBytes(append([]byte{0x65}, bytes.Repeat([]byte{0x01}, 200000)...))
	for i := 0; i < b.N; i++ {
		FragmentsFrom(u, DefaultMaximumFragmentSize)
	}
}
