package streamer

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/rtcstream/h264frag/pkg/liberrors"
	"github.com/rtcstream/h264frag/pkg/rtcpsender"
	"github.com/rtcstream/h264frag/pkg/rtph264"
)

func multiplyAndDivide(v, m, d time.Duration) time.Duration {
	secs := v / d
	dec := v % d
	return (secs*m + dec*m/d)
}

// Sender sends access units to a UDP destination as RTP/H264 packets,
// and RTCP sender reports to the following port.
type Sender struct {
	// destination of RTP packets.
	Destination *net.UDPAddr

	// destination of RTCP packets (optional).
	// It defaults to the RTP destination with the port increased by one.
	RTCPDestination *net.UDPAddr

	// RTP/H264 encoder. It must be initialized.
	Encoder *rtph264.Encoder

	// SRTP master key and salt (optional).
	SRTPKey []byte

	// TTL of multicast packets.
	MulticastTTL int

	// interval between RTCP reports.
	RTCPPeriod time.Duration

	// function used to open sockets (optional).
	ListenPacket func(network, address string) (net.PacketConn, error)

	// called after packets of an access unit have been sent (optional).
	OnPacketsSent func([]*rtp.Packet)

	Log *zap.SugaredLogger

	conn       net.PacketConn
	srtpCtx    *srtp.Context
	srtpMutex  sync.Mutex
	rtcpSender *rtcpsender.RTCPSender
	timeOffset uint32
}

// Initialize initializes the sender.
func (s *Sender) Initialize() error {
	if s.Destination == nil {
		return fmt.Errorf("destination not provided")
	}
	if s.Encoder == nil {
		return fmt.Errorf("encoder not provided")
	}
	if s.RTCPDestination == nil {
		s.RTCPDestination = &net.UDPAddr{
			IP:   s.Destination.IP,
			Port: s.Destination.Port + 1,
			Zone: s.Destination.Zone,
		}
	}
	if s.ListenPacket == nil {
		s.ListenPacket = net.ListenPacket
	}
	if s.Log == nil {
		s.Log = zap.NewNop().Sugar()
	}

	if s.SRTPKey != nil {
		if len(s.SRTPKey) != 30 {
			return liberrors.ErrSRTPKeyInvalid{Err: fmt.Errorf("key must be 30 bytes long, got %d", len(s.SRTPKey))}
		}

		var err error
		s.srtpCtx, err = srtp.CreateContext(s.SRTPKey[:16], s.SRTPKey[16:], srtp.ProtectionProfileAes128CmHmacSha1_80)
		if err != nil {
			return liberrors.ErrSRTPKeyInvalid{Err: err}
		}
	}

	var err error
	s.conn, err = s.ListenPacket(listenNetwork(s.Destination), ":0")
	if err != nil {
		return err
	}

	if s.Destination.IP.IsMulticast() && s.Destination.IP.To4() != nil {
		err = ipv4.NewPacketConn(s.conn).SetMulticastTTL(s.MulticastTTL)
		if err != nil {
			s.conn.Close() //nolint:errcheck
			return fmt.Errorf("unable to set multicast TTL: %w", err)
		}
	}

	v, err := randUint32()
	if err != nil {
		s.conn.Close() //nolint:errcheck
		return err
	}
	s.timeOffset = v

	s.rtcpSender = &rtcpsender.RTCPSender{
		ClockRate:       rtph264.ClockRate,
		Period:          s.RTCPPeriod,
		WritePacketRTCP: s.writePacketsRTCP,
	}
	s.rtcpSender.Initialize()

	s.Log.Infow("sending RTP/H264",
		"destination", s.Destination.String(),
		"rtcp", s.RTCPDestination.String(),
		"maxFragmentSize", s.Encoder.PayloadMaxSize,
		"srtp", s.srtpCtx != nil)

	return nil
}

// Close closes the sender.
func (s *Sender) Close() {
	s.rtcpSender.Close()
	s.conn.Close() //nolint:errcheck
}

// Stats returns RTCP statistics, or nil if nothing has been sent yet.
func (s *Sender) Stats() *rtcpsender.Stats {
	return s.rtcpSender.Stats()
}

func listenNetwork(addr *net.UDPAddr) string {
	if addr.IP.To4() != nil {
		return "udp4"
	}
	return "udp"
}

// WriteAccessUnit fragments and sends an access unit.
// pts is relative to the start of the stream, ntp is the absolute time of the access unit.
func (s *Sender) WriteAccessUnit(au [][]byte, pts time.Duration, ntp time.Time) error {
	pkts, err := s.Encoder.Encode(au)
	if err != nil {
		return err
	}

	ts := s.timeOffset + uint32(multiplyAndDivide(pts, rtph264.ClockRate, time.Second))

	for i, pkt := range pkts {
		pkt.Timestamp = ts

		err = s.writePacketRTP(pkt)
		if err != nil {
			return err
		}

		s.rtcpSender.ProcessPacketRTP(pkt, ntp, i == 0)
	}

	if s.OnPacketsSent != nil {
		s.OnPacketsSent(pkts)
	}

	return nil
}

func (s *Sender) writePacketRTP(pkt *rtp.Packet) error {
	buf, err := pkt.Marshal()
	if err != nil {
		return err
	}

	if s.srtpCtx != nil {
		s.srtpMutex.Lock()
		buf, err = s.srtpCtx.EncryptRTP(nil, buf, &pkt.Header)
		s.srtpMutex.Unlock()
		if err != nil {
			return err
		}
	}

	_, err = s.conn.WriteTo(buf, s.Destination)
	return err
}

func (s *Sender) writePacketsRTCP(pkts []rtcp.Packet) {
	buf, err := rtcp.Marshal(pkts)
	if err != nil {
		s.Log.Warnw("unable to marshal RTCP packets", "error", err)
		return
	}

	if s.srtpCtx != nil {
		s.srtpMutex.Lock()
		buf, err = s.srtpCtx.EncryptRTCP(nil, buf, nil)
		s.srtpMutex.Unlock()
		if err != nil {
			s.Log.Warnw("unable to encrypt RTCP packets", "error", err)
			return
		}
	}

	_, err = s.conn.WriteTo(buf, s.RTCPDestination)
	if err != nil {
		s.Log.Warnw("unable to send RTCP packets", "error", err)
		return
	}

	s.Log.Debugw("RTCP sender report sent", "destination", s.RTCPDestination.String())
}
