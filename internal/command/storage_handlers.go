package command

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidid/internal/bidi"
)

func registerStorageHandlers(p *Processor) {
	p.Register("storage.getCookies", handleGetCookies)
	p.Register("storage.setCookie", handleSetCookie)
}

type partitionParam struct {
	Type         string `json:"type"`
	SourceOrigin string `json:"sourceOrigin"`
}

// sameSiteFromCDP maps a CDP cookie's sameSite value onto BiDi's
// enum, defaulting any value CDP didn't return (or returned as
// something unrecognized) to "lax" on read (§4.12).
func sameSiteFromCDP(v string) string {
	switch v {
	case "Strict":
		return "strict"
	case "None":
		return "none"
	default:
		return "lax"
	}
}

// sameSiteToCDP maps a BiDi sameSite value onto CDP's enum, rejecting
// anything unrecognized on write (§4.12).
func sameSiteToCDP(v string) (string, error) {
	switch v {
	case "strict":
		return "Strict", nil
	case "lax":
		return "Lax", nil
	case "none":
		return "None", nil
	default:
		return "", bidi.InvalidArgument("unknown sameSite value: %s", v)
	}
}

func handleGetCookies(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Filter    json.RawMessage `json:"filter"`
		Partition *partitionParam `json:"partition"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Partition == nil || p.Partition.SourceOrigin == "" {
		return nil, bidi.UnderspecifiedStoragePartition("partition requires sourceOrigin")
	}

	raw, err := sess.CDP.SendToSession(ctx, "", "Storage.getCookies", map[string]any{
		"browserContextId": p.Partition.SourceOrigin,
	})
	if err != nil {
		return nil, bidi.Unknown("%v", err)
	}

	var result struct {
		Cookies []struct {
			Name     string  `json:"name"`
			Value    string  `json:"value"`
			Domain   string  `json:"domain"`
			Path     string  `json:"path"`
			Expires  float64 `json:"expires"`
			HTTPOnly bool    `json:"httpOnly"`
			Secure   bool    `json:"secure"`
			SameSite string  `json:"sameSite"`
		} `json:"cookies"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bidi.Unknown("%v", err)
	}

	out := make([]map[string]any, 0, len(result.Cookies))
	for _, c := range result.Cookies {
		out = append(out, map[string]any{
			"name":     c.Name,
			"value":    map[string]any{"type": "string", "value": c.Value},
			"domain":   c.Domain,
			"path":     c.Path,
			"expiry":   c.Expires,
			"httpOnly": c.HTTPOnly,
			"secure":   c.Secure,
			"sameSite": sameSiteFromCDP(c.SameSite),
		})
	}
	return map[string]any{
		"cookies":   out,
		"partition": map[string]any{"type": "storageKey", "sourceOrigin": p.Partition.SourceOrigin},
	}, nil
}

func handleSetCookie(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Cookie struct {
			Name  string `json:"name"`
			Value struct {
				Value string `json:"value"`
			} `json:"value"`
			Domain   string  `json:"domain"`
			Path     string  `json:"path"`
			Expiry   float64 `json:"expiry"`
			HTTPOnly bool    `json:"httpOnly"`
			Secure   bool    `json:"secure"`
			SameSite string  `json:"sameSite"`
		} `json:"cookie"`
		Partition *partitionParam `json:"partition"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Partition == nil || p.Partition.SourceOrigin == "" {
		return nil, bidi.UnderspecifiedStoragePartition("partition requires sourceOrigin")
	}

	sameSite, err := sameSiteToCDP(p.Cookie.SameSite)
	if err != nil {
		return nil, bidi.UnableToSetCookie("%v", err)
	}

	cdpCookie := map[string]any{
		"name":     p.Cookie.Name,
		"value":    p.Cookie.Value.Value,
		"domain":   p.Cookie.Domain,
		"path":     p.Cookie.Path,
		"httpOnly": p.Cookie.HTTPOnly,
		"secure":   p.Cookie.Secure,
		"sameSite": sameSite,
	}
	if p.Cookie.Expiry != 0 {
		cdpCookie["expires"] = p.Cookie.Expiry
	}

	if _, err := sess.CDP.SendToSession(ctx, "", "Storage.setCookies", map[string]any{
		"cookies":          []map[string]any{cdpCookie},
		"browserContextId": p.Partition.SourceOrigin,
	}); err != nil {
		return nil, bidi.UnableToSetCookie("%v", err)
	}
	return map[string]any{}, nil
}
