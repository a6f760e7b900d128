package fixcodec

import (
	"strconv"
	"strings"

	"github.com/dundas/truex-mm/internal/fixproto"
	"github.com/dundas/truex-mm/internal/model"
)

// Decode parses a single complete FIX message (including its 8=/9=/10=
// framing) into a Message, verifying BodyLength and the checksum. It scans
// the buffer once with IndexByte, the same single-pass technique the
// teacher's parser.go uses for market-data entries (no repeated
// strings.Split / regex passes), generalized here from one repeating group
// to the whole message.
func Decode(raw []byte) (*Message, error) {
	s := string(raw)

	bodyLenStart := strings.Index(s, "9=")
	if bodyLenStart < 0 {
		return nil, model.New(model.ProtocolError, "missing tag 9 (BodyLength)")
	}
	bodyLenValEnd := indexByteFrom(s, bodyLenStart, SOH)
	if bodyLenValEnd < 0 {
		return nil, model.New(model.ProtocolError, "malformed tag 9 (BodyLength)")
	}
	bodyLenVal := s[bodyLenStart+2 : bodyLenValEnd]
	bodyLen, err := strconv.Atoi(bodyLenVal)
	if err != nil {
		return nil, model.Wrap(model.ProtocolError, "invalid BodyLength value", err)
	}

	bodyStart := bodyLenValEnd + 1
	bodyEnd := bodyStart + bodyLen
	if bodyEnd > len(s) {
		return nil, model.New(model.ProtocolError, "BodyLength exceeds buffer")
	}

	checksumTagStart := strings.Index(s[bodyEnd:], "10=")
	if checksumTagStart < 0 {
		return nil, model.New(model.ProtocolError, "missing tag 10 (CheckSum)")
	}
	checksumTagStart += bodyEnd
	checksumValEnd := indexByteFrom(s, checksumTagStart, SOH)
	if checksumValEnd < 0 {
		return nil, model.New(model.ProtocolError, "malformed tag 10 (CheckSum)")
	}
	wantChecksum := s[checksumTagStart+3 : checksumValEnd]

	gotChecksum := 0
	for i := 0; i < checksumTagStart; i++ {
		gotChecksum += int(s[i])
	}
	gotChecksum %= 256
	if formatted := zeroPad3(gotChecksum); formatted != wantChecksum {
		return nil, model.New(model.ProtocolError, "checksum mismatch")
	}

	msg := NewMessage()
	if err := scanFields(s[:checksumTagStart], msg); err != nil {
		return nil, err
	}
	msg.Set(fixproto.TagCheckSum, wantChecksum)
	return msg, nil
}

// scanFields walks s, splitting on SOH, and parses each "tag=value" segment.
// It mirrors parseTradeFromSegmentFast's single IndexByte-per-field approach:
// no intermediate []string allocation from strings.Split.
func scanFields(s string, msg *Message) error {
	start := 0
	for start < len(s) {
		sohIdx := indexByteFrom(s, start, SOH)
		if sohIdx < 0 {
			break
		}
		segment := s[start:sohIdx]
		start = sohIdx + 1
		if segment == "" {
			continue
		}
		eq := strings.IndexByte(segment, '=')
		if eq < 0 {
			continue
		}
		tagNum, err := strconv.Atoi(segment[:eq])
		if err != nil {
			continue
		}
		msg.Set(fixproto.Tag(tagNum), segment[eq+1:])
	}
	return nil
}

func indexByteFrom(s string, from int, b byte) int {
	i := strings.IndexByte(s[from:], b)
	if i < 0 {
		return -1
	}
	return from + i
}

func zeroPad3(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

// SplitMessages scans a read buffer for complete framed messages delimited
// by the "10=NNN\x01" trailer, returning each raw message and the number of
// bytes consumed. Used by FixSession's read loop to handle TCP fragmentation
// (a single Read may return a partial message or several back-to-back ones).
func SplitMessages(buf []byte) (messages [][]byte, consumed int) {
	s := string(buf)
	pos := 0
	for {
		tagStart := strings.Index(s[pos:], "8=")
		if tagStart < 0 {
			break
		}
		tagStart += pos
		trailerIdx := strings.Index(s[tagStart:], "10=")
		if trailerIdx < 0 {
			break
		}
		trailerIdx += tagStart
		end := indexByteFrom(s, trailerIdx, SOH)
		if end < 0 {
			break
		}
		end++ // include the trailing SOH
		messages = append(messages, buf[tagStart:end])
		pos = end
	}
	return messages, pos
}
