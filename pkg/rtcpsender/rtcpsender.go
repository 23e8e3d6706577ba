// Package rtcpsender contains a utility to generate RTCP sender reports.
package rtcpsender

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// ntpEncode encodes a timestamp in NTP format.
// Specification: RFC3550, section 4
func ntpEncode(t time.Time) uint64 {
	ntp := uint64(t.UnixNano()) + 2208988800*1000000000
	secs := ntp / 1000000000
	fractional := uint64(math.Round(float64((ntp%1000000000)*(1<<32)) / 1000000000))
	return secs<<32 | fractional
}

// RTCPSender is a utility to generate RTCP sender reports.
type RTCPSender struct {
	// clock rate of the stream.
	ClockRate int

	// interval between reports.
	// It defaults to 5 seconds.
	Period time.Duration

	// canonical name of the sender (optional).
	// It defaults to a random UUID.
	CNAME string

	// function returning the current time (optional).
	TimeNow func() time.Time

	// called when a report is ready.
	WritePacketRTCP func([]rtcp.Packet)

	mutex sync.Mutex

	// data from RTP packets
	firstRTPPacketSent bool
	lastTimeRTP        uint32
	lastTimeNTP        time.Time
	lastTimeSystem     time.Time
	localSSRC          uint32
	lastSequenceNumber uint16
	packetCount        uint32
	octetCount         uint32

	terminate chan struct{}
	done      chan struct{}
}

// Initialize initializes a RTCPSender.
func (rs *RTCPSender) Initialize() {
	if rs.TimeNow == nil {
		rs.TimeNow = time.Now
	}
	if rs.Period == 0 {
		rs.Period = 5 * time.Second
	}
	if rs.CNAME == "" {
		rs.CNAME = uuid.New().String()
	}

	rs.terminate = make(chan struct{})
	rs.done = make(chan struct{})

	go rs.run()
}

// Close closes the RTCPSender.
func (rs *RTCPSender) Close() {
	close(rs.terminate)
	<-rs.done
}

func (rs *RTCPSender) run() {
	defer close(rs.done)

	t := time.NewTicker(rs.Period)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			pkts := rs.Report()
			if pkts != nil {
				rs.WritePacketRTCP(pkts)
			}

		case <-rs.terminate:
			return
		}
	}
}

// Report returns a sender report followed by a source description,
// or nil if no RTP packet has been sent yet.
func (rs *RTCPSender) Report() []rtcp.Packet {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	if !rs.firstRTPPacketSent {
		return nil
	}

	systemTimeDiff := rs.TimeNow().Sub(rs.lastTimeSystem)
	ntpTime := rs.lastTimeNTP.Add(systemTimeDiff)
	rtpTime := rs.lastTimeRTP + uint32(systemTimeDiff.Seconds()*float64(rs.ClockRate))

	return []rtcp.Packet{
		&rtcp.SenderReport{
			SSRC:        rs.localSSRC,
			NTPTime:     ntpEncode(ntpTime),
			RTPTime:     rtpTime,
			PacketCount: rs.packetCount,
			OctetCount:  rs.octetCount,
		},
		&rtcp.SourceDescription{
			Chunks: []rtcp.SourceDescriptionChunk{{
				Source: rs.localSSRC,
				Items: []rtcp.SourceDescriptionItem{{
					Type: rtcp.SDESCNAME,
					Text: rs.CNAME,
				}},
			}},
		},
	}
}

// ProcessPacketRTP extracts data from a RTP packet that is being sent.
// ntp is the absolute time of the packet; the RTP/NTP time mapping is
// updated on packets that start an access unit.
func (rs *RTCPSender) ProcessPacketRTP(pkt *rtp.Packet, ntp time.Time, isAccessUnitStart bool) {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	if isAccessUnitStart || !rs.firstRTPPacketSent {
		rs.firstRTPPacketSent = true
		rs.lastTimeRTP = pkt.Timestamp
		rs.lastTimeNTP = ntp
		rs.lastTimeSystem = rs.TimeNow()
		rs.localSSRC = pkt.SSRC
	}

	rs.lastSequenceNumber = pkt.SequenceNumber

	rs.packetCount++
	rs.octetCount += uint32(len(pkt.Payload))
}

// Stats are statistics.
type Stats struct {
	LocalSSRC          uint32
	LastSequenceNumber uint16
	LastRTP            uint32
	LastNTP            time.Time
	PacketCount        uint32
	OctetCount         uint32
}

// Stats returns statistics.
func (rs *RTCPSender) Stats() *Stats {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	if !rs.firstRTPPacketSent {
		return nil
	}

	return &Stats{
		LocalSSRC:          rs.localSSRC,
		LastSequenceNumber: rs.lastSequenceNumber,
		LastRTP:            rs.lastTimeRTP,
		LastNTP:            rs.lastTimeNTP,
		PacketCount:        rs.packetCount,
		OctetCount:         rs.octetCount,
	}
}
