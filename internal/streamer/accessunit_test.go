package streamer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rtcstream/h264frag/pkg/nalu"
)

func TestAccessUnitSplitter(t *testing.T) {
	aud := nalu.Unit{0x09, 0xf0}
	sps := nalu.Unit{0x67, 0x42}
	pps := nalu.Unit{0x68, 0xce}
	idrSlice0 := nalu.Unit{0x65, 0x88}
	idrSlice1 := nalu.Unit{0x65, 0x40}
	p0 := nalu.Unit{0x41, 0x9a}
	p1 := nalu.Unit{0x41, 0x9b}
	sei := nalu.Unit{0x06, 0x05}

	var s accessUnitSplitter
	var aus []nalu.Units

	for _, u := range []nalu.Unit{aud, sps, pps, idrSlice0, idrSlice1, p0, sei, p1} {
		if au := s.push(u); au != nil {
			aus = append(aus, au)
		}
	}
	aus = append(aus, s.flush())

	require.Equal(t, []nalu.Units{
		{aud, sps, pps, idrSlice0, idrSlice1},
		{p0},
		{sei, p1},
	}, aus)

	require.Nil(t, s.flush())
}

func TestStartsAccessUnit(t *testing.T) {
	for _, ca := range []struct {
		name string
		unit nalu.Unit
		ok   bool
	}{
		{"aud", nalu.Unit{0x09, 0xf0}, true},
		{"first slice", nalu.Unit{0x41, 0x9a}, true},
		{"second slice", nalu.Unit{0x41, 0x40}, false},
		{"slice without payload", nalu.Unit{0x41}, false},
		{"filler", nalu.Unit{0x0c, 0xff}, false},
		{"prefix", nalu.Unit{0x0e, 0x00}, true},
	} {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.ok, startsAccessUnit(ca.unit))
		})
	}
}
