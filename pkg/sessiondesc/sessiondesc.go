// Package sessiondesc contains a SDP description of a H264 RTP stream.
package sessiondesc

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	psdp "github.com/pion/sdp/v3"
)

// H264 is the RTP format of a H264 stream.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
type H264 struct {
	PayloadType       uint8
	SPS               []byte
	PPS               []byte
	PacketizationMode int
}

// SetParams sets SPS and PPS after validating the SPS.
func (f *H264) SetParams(sps []byte, pps []byte) (*h264.SPS, error) {
	var spsp h264.SPS
	err := spsp.Unmarshal(sps)
	if err != nil {
		return nil, fmt.Errorf("invalid SPS: %w", err)
	}

	f.SPS = sps
	f.PPS = pps
	return &spsp, nil
}

// RTPMap returns the rtpmap attribute.
func (f *H264) RTPMap() string {
	return "H264/90000"
}

// FMTP returns the fmtp attribute.
func (f *H264) FMTP() map[string]string {
	fmtp := make(map[string]string)

	if f.PacketizationMode != 0 {
		fmtp["packetization-mode"] = strconv.FormatInt(int64(f.PacketizationMode), 10)
	}

	var tmp []string
	if f.SPS != nil {
		tmp = append(tmp, base64.StdEncoding.EncodeToString(f.SPS))
	}
	if f.PPS != nil {
		tmp = append(tmp, base64.StdEncoding.EncodeToString(f.PPS))
	}
	if tmp != nil {
		fmtp["sprop-parameter-sets"] = strings.Join(tmp, ",")
	}
	if len(f.SPS) >= 4 {
		fmtp["profile-level-id"] = strings.ToUpper(hex.EncodeToString(f.SPS[1:4]))
	}

	return fmtp
}

func sortedKeys(fmtp map[string]string) []string {
	keys := make([]string, len(fmtp))
	i := 0
	for key := range fmtp {
		keys[i] = key
		i++
	}
	sort.Strings(keys)
	return keys
}

// Session is the description of a stream sent to a single destination.
type Session struct {
	Title       string
	Destination *net.UDPAddr
	Format      *H264

	// TTL advertised when Destination is a multicast address.
	MulticastTTL int
}

func addressType(ip net.IP) string {
	if ip.To4() != nil {
		return "IP4"
	}
	return "IP6"
}

// Marshal encodes the description in SDP.
func (d Session) Marshal() ([]byte, error) {
	if d.Destination == nil || d.Format == nil {
		return nil, fmt.Errorf("destination and format are required")
	}

	var sessionName psdp.SessionName
	if d.Title != "" {
		sessionName = psdp.SessionName(d.Title)
	} else {
		// RFC 4566: If a session has no meaningful name, the
		// value "s= " SHOULD be used (i.e., a single space as the session name).
		sessionName = psdp.SessionName(" ")
	}

	ip := d.Destination.IP
	if ip == nil {
		ip = net.IPv4zero
	}

	addr := &psdp.Address{Address: ip.String()}
	if ip.IsMulticast() && d.MulticastTTL > 0 {
		ttl := d.MulticastTTL
		addr.TTL = &ttl
	}

	typ := strconv.FormatUint(uint64(d.Format.PayloadType), 10)

	md := &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   "video",
			Port:    psdp.RangedPort{Value: d.Destination.Port},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{typ},
		},
		Attributes: []psdp.Attribute{{
			Key:   "rtpmap",
			Value: typ + " " + d.Format.RTPMap(),
		}},
	}

	fmtp := d.Format.FMTP()
	if len(fmtp) != 0 {
		tmp := make([]string, len(fmtp))
		for i, key := range sortedKeys(fmtp) {
			tmp[i] = key + "=" + fmtp[key]
		}

		md.Attributes = append(md.Attributes, psdp.Attribute{
			Key:   "fmtp",
			Value: typ + " " + strings.Join(tmp, "; "),
		})
	}

	sout := &psdp.SessionDescription{
		SessionName: sessionName,
		Origin: psdp.Origin{
			Username:       "-",
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType(ip),
			Address:     addr,
		},
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*psdp.MediaDescription{md},
	}

	return sout.Marshal()
}
