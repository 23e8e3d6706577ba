package streamer

import (
	"bufio"
	"bytes"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/rtcstream/h264frag/pkg/nalu"
)

var annexBStartCode = []byte{0x00, 0x00, 0x01}

// splitAnnexB is a bufio.SplitFunc that returns the NALUs of a Annex-B stream.
// Bytes before the first start code are discarded, as are trailing zero bytes.
func splitAnnexB(data []byte, atEOF bool) (int, []byte, error) {
	pos := bytes.Index(data, annexBStartCode)
	if pos < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}

	begin := pos + len(annexBStartCode)

	next := bytes.Index(data[begin:], annexBStartCode)
	if next < 0 {
		if !atEOF {
			return 0, nil, nil
		}
		return len(data), bytes.TrimRight(data[begin:], "\x00"), nil
	}

	return begin + next, bytes.TrimRight(data[begin:begin+next], "\x00"), nil
}

// annexBReader reads NAL units from a Annex-B stream, one at a time.
type annexBReader struct {
	scanner *bufio.Scanner
}

func newAnnexBReader(r io.Reader) *annexBReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), h264.MaxAccessUnitSize)
	scanner.Split(splitAnnexB)

	return &annexBReader{
		scanner: scanner,
	}
}

// Read returns the next unit, or io.EOF at the end of the stream.
func (r *annexBReader) Read() (nalu.Unit, error) {
	for r.scanner.Scan() {
		tok := r.scanner.Bytes()
		if len(tok) == 0 {
			continue
		}

		// the scanner reuses its buffer
		return nalu.NewUnitFromBytes(tok), nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
