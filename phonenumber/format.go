package phonenumber

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Format names a canonical output format.
type Format string

const (
	FormatE164          Format = "E164"
	FormatInternational Format = "INTERNATIONAL"
	FormatNational      Format = "NATIONAL"
	FormatRFC3966       Format = "RFC3966"
)

var formats = map[Format]phonenumbers.PhoneNumberFormat{
	FormatE164:          phonenumbers.E164,
	FormatInternational: phonenumbers.INTERNATIONAL,
	FormatNational:      phonenumbers.NATIONAL,
	FormatRFC3966:       phonenumbers.RFC3966,
}

// allFormats is ordered so equivalence sets are deterministic.
var allFormats = []Format{FormatE164, FormatInternational, FormatNational, FormatRFC3966}

// ParseFormat resolves a configured format name. Matching ignores case,
// surrounding space and dots so "e.164" is accepted.
func ParseFormat(name string) (Format, bool) {
	normalized := Format(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), ".", "")))
	if _, ok := formats[normalized]; !ok {
		return "", false
	}
	return normalized, true
}
