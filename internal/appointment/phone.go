package appointment

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// defaultPhoneRegion is assumed for numbers given without a country code.
const defaultPhoneRegion = "BR"

// normalizePhone rewrites a recognisable phone number in E.164 form. Anything
// it cannot parse is kept as typed, since the phone is contact data only.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
