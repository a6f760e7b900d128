package fixcodec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dundas/truex-mm/internal/fixproto"
)

// Encode renders m to wire bytes: 8=<begin>|9=<bodylen>|...body...|10=<checksum>|
// BodyLength is the byte count from immediately after "9=<BodyLength>\x01" up
// to (not including) "10=". Checksum is the sum of all preceding bytes
// modulo 256, three-digit zero-padded, per spec.md §4.1.
//
// beginString and body fields (everything except 8=, 9=, and 10=) are taken
// from m.Fields in order; 8=/9=/10= are always recomputed here regardless of
// whether m happens to carry stale copies, so a decoded-then-re-encoded
// message is always wire-correct.
func Encode(m *Message, beginString string) []byte {
	var body strings.Builder
	for _, f := range m.Fields {
		switch f.Tag {
		case fixproto.TagBeginString, fixproto.TagBodyLength, fixproto.TagCheckSum:
			continue
		}
		body.WriteString(strconv.Itoa(int(f.Tag)))
		body.WriteByte('=')
		body.WriteString(f.Value)
		body.WriteByte(SOH)
	}
	bodyBytes := body.String()

	var head strings.Builder
	head.WriteString("8=")
	head.WriteString(beginString)
	head.WriteByte(SOH)
	head.WriteString("9=")
	head.WriteString(strconv.Itoa(len(bodyBytes)))
	head.WriteByte(SOH)

	full := head.String() + bodyBytes

	checksum := 0
	for i := 0; i < len(full); i++ {
		checksum += int(full[i])
	}
	checksum %= 256

	trailer := fmt.Sprintf("10=%03d%c", checksum, SOH)
	return []byte(full + trailer)
}
