package network

import (
	"encoding/base64"
	"sort"
	"strings"
)

// HeaderSize computes Σ "<name>: <value>\r\n" in UTF-8 bytes (§4.8).
func HeaderSize(headers map[string]string) int {
	total := 0
	for name, value := range headers {
		total += len(name) + len(": ") + len(value) + len("\r\n")
	}
	return total
}

// EncodeBodyForCDP converts a BiDi body override into the raw bytes CDP
// expects: a "string" body is base64-encoded (CDP always wants
// base64), a "base64" body is passed through verbatim.
func EncodeBodyForCDP(b *BodyOverride) string {
	if b == nil {
		return ""
	}
	if b.Type == "base64" {
		return b.Value
	}
	return base64.StdEncoding.EncodeToString([]byte(b.Value))
}

// BodySize returns the decoded byte length of a body override: the
// original string length for a "string" body, or the decoded length for
// a "base64" body (§4.8: "Size for computed bodySize uses
// original-string length or decoded base64 length").
func BodySize(b *BodyOverride) int {
	if b == nil {
		return 0
	}
	if b.Type == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(b.Value)
		if err != nil {
			return 0
		}
		return len(decoded)
	}
	return len(b.Value)
}

// MergeCookieHeader implements §4.8's cookie-merge rule: if only cookies
// are supplied, baseHeaders is used verbatim except its `cookie` header
// (matched case-insensitively) is replaced by the serialized cookies; if
// headers are also supplied, any existing `cookie` header among them is
// filtered out first and the synthesized header is appended.
func MergeCookieHeader(baseHeaders, overrideHeaders []HeaderOverride, cookies []CookieOverride) []HeaderOverride {
	if len(cookies) == 0 {
		if overrideHeaders != nil {
			return overrideHeaders
		}
		return baseHeaders
	}

	source := overrideHeaders
	if source == nil {
		source = baseHeaders
	}

	out := make([]HeaderOverride, 0, len(source)+1)
	for _, h := range source {
		if strings.EqualFold(h.Name, "cookie") {
			continue
		}
		out = append(out, h)
	}
	out = append(out, HeaderOverride{Name: "cookie", Value: serializeCookieHeader(cookies)})
	return out
}

func serializeCookieHeader(cookies []CookieOverride) string {
	sorted := make([]CookieOverride, len(cookies))
	copy(sorted, cookies)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
