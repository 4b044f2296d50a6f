// Package masking redacts buyer and credential data before sale events and
// webhook signatures reach logs or audit metadata.
package masking

import "strings"

const (
	redacted    = "****"
	visibleTail = 4
)

// identifyingKeys name sale event fields that point at a person or a
// payment. Amounts, currencies and event types stay readable.
var identifyingKeys = map[string]struct{}{
	"buyer_id":                {},
	"buyer_user_id":           {},
	"email":                   {},
	"referral_code":           {},
	"external_transaction_id": {},
}

// MaskSecret keeps a key prefix such as "whsec_" and the last four
// characters, so operators can tell secrets apart without reading them.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	prefix := ""
	if i := strings.LastIndexByte(value, '_'); i >= 0 && i < len(value)-1 {
		prefix, value = value[:i+1], value[i+1:]
	}
	if len(value) <= visibleTail {
		return prefix + redacted
	}
	return prefix + redacted + value[len(value)-visibleTail:]
}

// MaskSignature redacts the digests of a "t=<unix>,v1=<hex>" signature
// header and keeps the timestamp, which is what tolerance failures need.
func MaskSignature(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.Split(header, ",")
	for i, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return MaskSecret(header)
		}
		if key != "t" {
			parts[i] = key + "=" + MaskSecret(value)
		}
	}
	return strings.Join(parts, ",")
}

// MaskSaleEvent returns a copy of a decoded sale event with identifying
// fields redacted at any depth.
func MaskSaleEvent(event map[string]any) map[string]any {
	if len(event) == 0 {
		return nil
	}
	out := make(map[string]any, len(event))
	for key, value := range event {
		if _, ok := identifyingKeys[strings.ToLower(key)]; ok {
			out[key] = maskField(value)
			continue
		}
		out[key] = maskNested(value)
	}
	return out
}

func maskField(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return MaskSecret(v)
	default:
		return redacted
	}
}

func maskNested(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return MaskSaleEvent(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = maskNested(item)
		}
		return items
	default:
		return v
	}
}
