package warehouse

import "unicode/utf8"

// MaxRunErrorMessage bounds the error text kept in the run ledger, in bytes.
const MaxRunErrorMessage = 2000

// RunErrorMessage cuts msg to at most MaxRunErrorMessage bytes. The cut
// never splits a UTF-8 sequence.
func RunErrorMessage(msg string) string {
	if len(msg) <= MaxRunErrorMessage {
		return msg
	}
	n := MaxRunErrorMessage
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}
