package fixsession

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/dundas/truex-mm/internal/fixproto"
)

// SignLogon computes the optional logon signature named in spec.md §4.1:
//
//	HMAC-SHA256(secret, "A" || SendingTime || MsgSeqNum || SenderCompID || TargetCompID || Password)
//
// base64-encoded. The field list and byte order are fixed here; Config
// only decides whether a signature is sent at all (an empty Secret sends
// none), and BuildLogon always carries it in TagHmacSignature.
func SignLogon(secret, sendingTime string, seqNum int, senderCompID, targetCompID, password string) string {
	payload := fixproto.MsgTypeLogon + sendingTime + itoaSmall(seqNum) + senderCompID + targetCompID + password
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func itoaSmall(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
