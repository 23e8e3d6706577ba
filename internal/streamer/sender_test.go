package streamer

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"
	"github.com/stretchr/testify/require"

	"github.com/rtcstream/h264frag/pkg/rtph264"
)

func listenLocal(t *testing.T) net.PacketConn {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	return pc
}

func readPacket(t *testing.T, pc net.PacketConn) []byte {
	buf := make([]byte, 2048)
	err := pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return buf[:n]
}

func testAccessUnit() [][]byte {
	return [][]byte{
		{0x09, 0xf0},
		append([]byte{0x65}, bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 300)...),
	}
}

func TestSender(t *testing.T) {
	rtpListener := listenLocal(t)
	rtcpListener := listenLocal(t)

	enc := &rtph264.Encoder{
		PayloadType:    96,
		PayloadMaxSize: 500,
	}
	err := enc.Init()
	require.NoError(t, err)

	var sent []*rtp.Packet

	s := &Sender{
		Destination:     rtpListener.LocalAddr().(*net.UDPAddr),
		RTCPDestination: rtcpListener.LocalAddr().(*net.UDPAddr),
		Encoder:         enc,
		MulticastTTL:    16,
		RTCPPeriod:      50 * time.Millisecond,
		OnPacketsSent: func(pkts []*rtp.Packet) {
			sent = append(sent, pkts...)
		},
	}
	err = s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	au := testAccessUnit()
	err = s.WriteAccessUnit(au, 500*time.Millisecond, time.Now())
	require.NoError(t, err)
	require.Len(t, sent, 4)

	d := &rtph264.Decoder{}
	err = d.Init()
	require.NoError(t, err)

	var decoded [][]byte
	for i := 0; i < len(sent); i++ {
		var pkt rtp.Packet
		err = pkt.Unmarshal(readPacket(t, rtpListener))
		require.NoError(t, err)
		require.Equal(t, *enc.SSRC, pkt.SSRC)
		require.Equal(t, s.timeOffset+45000, pkt.Timestamp)

		decoded, err = d.Decode(&pkt)
		if errors.Is(err, rtph264.ErrMorePacketsNeeded) {
			continue
		}
		require.NoError(t, err)
	}
	require.Equal(t, au, decoded)

	// a report may have been generated while packets were being sent
	for {
		pkts, err := rtcp.Unmarshal(readPacket(t, rtcpListener))
		require.NoError(t, err)
		require.Len(t, pkts, 2)

		sr, ok := pkts[0].(*rtcp.SenderReport)
		require.True(t, ok)
		require.Equal(t, *enc.SSRC, sr.SSRC)

		sdes, ok := pkts[1].(*rtcp.SourceDescription)
		require.True(t, ok)
		require.Equal(t, *enc.SSRC, sdes.Chunks[0].Source)

		if sr.PacketCount == 4 {
			break
		}
	}

	stats := s.Stats()
	require.NotNil(t, stats)
	require.Equal(t, uint32(4), stats.PacketCount)
}

func TestSenderSRTP(t *testing.T) {
	rtpListener := listenLocal(t)
	rtcpListener := listenLocal(t)

	key := bytes.Repeat([]byte{0x5a}, 30)

	enc := &rtph264.Encoder{
		PayloadType:    96,
		PayloadMaxSize: 500,
	}
	err := enc.Init()
	require.NoError(t, err)

	s := &Sender{
		Destination:     rtpListener.LocalAddr().(*net.UDPAddr),
		RTCPDestination: rtcpListener.LocalAddr().(*net.UDPAddr),
		Encoder:         enc,
		SRTPKey:         key,
		MulticastTTL:    16,
		RTCPPeriod:      time.Hour,
	}
	err = s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	err = s.WriteAccessUnit([][]byte{{0x41, 0x9a, 0x24}}, 0, time.Now())
	require.NoError(t, err)

	ctx, err := srtp.CreateContext(key[:16], key[16:], srtp.ProtectionProfileAes128CmHmacSha1_80)
	require.NoError(t, err)

	encrypted := readPacket(t, rtpListener)
	require.NotContains(t, string(encrypted), string([]byte{0x41, 0x9a, 0x24}))

	decrypted, err := ctx.DecryptRTP(nil, encrypted, nil)
	require.NoError(t, err)

	var pkt rtp.Packet
	err = pkt.Unmarshal(decrypted)
	require.NoError(t, err)
	require.Equal(t, []byte{0x41, 0x9a, 0x24}, pkt.Payload)
	require.Equal(t, true, pkt.Marker)
}

func TestSenderInvalidSRTPKey(t *testing.T) {
	enc := &rtph264.Encoder{}
	err := enc.Init()
	require.NoError(t, err)

	s := &Sender{
		Destination: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5004},
		Encoder:     enc,
		SRTPKey:     []byte{0x01},
	}
	err = s.Initialize()
	require.EqualError(t, err, "invalid SRTP key: key must be 30 bytes long, got 1")
}

func TestMultiplyAndDivide(t *testing.T) {
	require.Equal(t, time.Duration(45000), multiplyAndDivide(500*time.Millisecond, 90000, time.Second))
	require.Equal(t, time.Duration(90000*3600*48), multiplyAndDivide(48*time.Hour, 90000, time.Second))
}
