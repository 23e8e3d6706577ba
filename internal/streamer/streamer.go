// Package streamer reads H264 Annex-B files and sends them over RTP.
package streamer

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"go.uber.org/zap"

	"github.com/rtcstream/h264frag/internal/config"
	"github.com/rtcstream/h264frag/pkg/liberrors"
	"github.com/rtcstream/h264frag/pkg/nalu"
	"github.com/rtcstream/h264frag/pkg/rtph264"
	"github.com/rtcstream/h264frag/pkg/sessiondesc"
)

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Streamer reads a H264 Annex-B file and sends its access units at a constant frame rate.
type Streamer struct {
	Conf *config.Config
	Log  *zap.SugaredLogger

	// function returning the current time (optional).
	TimeNow func() time.Time

	sender *Sender
	format *sessiondesc.H264
}

// New allocates a Streamer.
func New(conf *config.Config, log *zap.SugaredLogger) *Streamer {
	return &Streamer{
		Conf: conf,
		Log:  log,
	}
}

// Initialize opens sockets.
func (s *Streamer) Initialize() error {
	if s.TimeNow == nil {
		s.TimeNow = time.Now
	}

	dest, err := s.Conf.DestinationAddr()
	if err != nil {
		return err
	}

	key, err := s.Conf.SRTPMasterKey()
	if err != nil {
		return err
	}

	enc := &rtph264.Encoder{
		PayloadType:    s.Conf.PayloadType,
		PayloadMaxSize: s.Conf.MaximumFragmentSize,
	}
	err = enc.Init()
	if err != nil {
		return err
	}

	s.format = &sessiondesc.H264{
		PayloadType:       s.Conf.PayloadType,
		PacketizationMode: 1,
	}

	s.sender = &Sender{
		Destination:  dest,
		Encoder:      enc,
		SRTPKey:      key,
		MulticastTTL: s.Conf.MulticastTTL,
		RTCPPeriod:   s.Conf.RTCPPeriod,
		Log:          s.Log,
	}
	return s.sender.Initialize()
}

// Close closes the streamer.
func (s *Streamer) Close() {
	s.sender.Close()
}

// Run sends the file until its end, or forever if looping is enabled,
// or until ctx is canceled.
func (s *Streamer) Run(ctx context.Context) error {
	frameDuration := s.Conf.FrameDuration()
	start := s.TimeNow()
	var pts time.Duration

	for {
		n, err := s.runFile(ctx, start, &pts, frameDuration)
		if err != nil {
			return err
		}

		if n == 0 {
			return liberrors.ErrNoNALUs{Source: s.Conf.InputFile}
		}

		if !s.Conf.Loop {
			s.Log.Infow("end of file reached", "accessUnits", n)
			return nil
		}

		s.Log.Debugw("restarting from the beginning of the file", "accessUnits", n)
	}
}

func (s *Streamer) runFile(
	ctx context.Context,
	start time.Time,
	pts *time.Duration,
	frameDuration time.Duration,
) (int, error) {
	f, err := os.Open(s.Conf.InputFile)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := newAnnexBReader(f)
	var splitter accessUnitSplitter
	count := 0

	send := func(au nalu.Units) error {
		if len(au) == 0 {
			return nil
		}

		// sleep until the access unit is due
		wait := start.Add(*pts).Sub(s.TimeNow())
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}

		s.updateParams(au)

		err := s.sender.WriteAccessUnit(au.AccessUnit(), *pts, start.Add(*pts))
		if err != nil {
			return err
		}

		count++
		*pts += frameDuration
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		u, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return count, fmt.Errorf("unable to read %s: %w", s.Conf.InputFile, err)
		}

		err = send(splitter.push(u))
		if err != nil {
			return count, err
		}
	}

	err = send(splitter.flush())
	return count, err
}

// updateParams extracts SPS and PPS and writes the SDP file when they change.
func (s *Streamer) updateParams(au nalu.Units) {
	var sps, pps []byte

	for _, u := range au {
		switch u.Header().NALUType() {
		case h264.NALUTypeSPS:
			sps = u
		case h264.NALUTypePPS:
			pps = u
		}
	}

	if sps == nil || pps == nil ||
		(bytes.Equal(sps, s.format.SPS) && bytes.Equal(pps, s.format.PPS)) {
		return
	}

	spsp, err := s.format.SetParams(sps, pps)
	if err != nil {
		s.Log.Warnw("unable to parse SPS", "error", err)
		return
	}

	s.Log.Infow("stream parameters found",
		"width", spsp.Width(),
		"height", spsp.Height(),
		"profile", spsp.ProfileIdc,
		"level", spsp.LevelIdc)

	if s.Conf.SDPFile == "" {
		return
	}

	desc := sessiondesc.Session{
		Title:        "h264frag",
		Destination:  s.sender.Destination,
		Format:       s.format,
		MulticastTTL: s.Conf.MulticastTTL,
	}

	byts, err := desc.Marshal()
	if err != nil {
		s.Log.Warnw("unable to generate SDP", "error", err)
		return
	}

	err = os.WriteFile(s.Conf.SDPFile, byts, 0o644)
	if err != nil {
		s.Log.Warnw("unable to write SDP file", "path", s.Conf.SDPFile, "error", err)
		return
	}

	s.Log.Infow("SDP file written", "path", s.Conf.SDPFile)
}
