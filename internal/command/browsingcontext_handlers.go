package command

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidid/internal/bidi"
)

func registerBrowsingContextHandlers(p *Processor) {
	p.Register("browsingContext.getTree", handleGetTree)
	p.Register("browsingContext.create", handleCreate)
	p.Register("browsingContext.navigate", handleNavigate)
	p.Register("browsingContext.reload", handleReload)
	p.Register("browsingContext.close", handleCloseContext)
	p.Register("browsingContext.activate", handleActivate)
	p.Register("browsingContext.setViewport", handleSetViewport)
	p.Register("browsingContext.captureScreenshot", handleCaptureScreenshot)
}

func contextInfo(c *bidi.BrowsingContext) map[string]any {
	children := make([]string, 0, len(c.Children))
	for id := range c.Children {
		children = append(children, id)
	}
	return map[string]any{
		"context":  c.ID,
		"parent":   c.ParentID,
		"url":      c.URL,
		"children": children,
	}
}

func handleGetTree(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Root string `json:"root"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	var roots []*bidi.BrowsingContext
	if p.Root != "" {
		c, ok := sess.Contexts.Get(p.Root)
		if !ok {
			return nil, bidi.NoSuchFrame("no such frame: %s", p.Root)
		}
		roots = []*bidi.BrowsingContext{c}
	} else {
		roots = sess.Contexts.TopLevel()
	}

	tree := make([]map[string]any, 0, len(roots))
	for _, c := range roots {
		tree = append(tree, contextInfo(c))
	}
	return map[string]any{"contexts": tree}, nil
}

func handleCreate(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	raw, err := sess.CDP.SendToSession(ctx, "", "Target.createTarget", map[string]any{
		"url": firstNonEmpty(p.URL, "about:blank"),
	})
	if err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	var result struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	return map[string]any{"context": result.TargetID}, nil
}

func handleNavigate(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Context string `json:"context"`
		URL     string `json:"url"`
		Wait    string `json:"wait"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	c, ok := sess.Contexts.Get(p.Context)
	if !ok {
		return nil, bidi.NoSuchFrame("no such frame: %s", p.Context)
	}
	if _, err := sess.CDP.SendToSession(ctx, c.CdpSessionID, "Page.navigate", map[string]any{"url": p.URL}); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	sess.Contexts.SetURL(p.Context, p.URL)
	return map[string]any{"navigation": nil, "url": p.URL}, nil
}

func handleReload(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Context     string `json:"context"`
		IgnoreCache bool   `json:"ignoreCache"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	c, ok := sess.Contexts.Get(p.Context)
	if !ok {
		return nil, bidi.NoSuchFrame("no such frame: %s", p.Context)
	}
	if _, err := sess.CDP.SendToSession(ctx, c.CdpSessionID, "Page.reload", map[string]any{
		"ignoreCache": p.IgnoreCache,
	}); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	return map[string]any{}, nil
}

func handleCloseContext(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Context string `json:"context"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	c, ok := sess.Contexts.Get(p.Context)
	if !ok {
		return nil, bidi.NoSuchFrame("no such frame: %s", p.Context)
	}
	if !c.IsTopLevel() {
		return nil, bidi.InvalidArgument("browsingContext.close only applies to top-level contexts")
	}
	if _, err := sess.CDP.SendToSession(ctx, "", "Target.closeTarget", map[string]any{"targetId": p.Context}); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	return map[string]any{}, nil
}

func handleActivate(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Context string `json:"context"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if !sess.Contexts.Exists(p.Context) {
		return nil, bidi.NoSuchFrame("no such frame: %s", p.Context)
	}
	if _, err := sess.CDP.SendToSession(ctx, "", "Target.activateTarget", map[string]any{"targetId": p.Context}); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	return map[string]any{}, nil
}

func handleSetViewport(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Context  string `json:"context"`
		Viewport *struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"viewport"`
		DevicePixelRatio float64 `json:"devicePixelRatio"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	c, ok := sess.Contexts.Get(p.Context)
	if !ok {
		return nil, bidi.NoSuchFrame("no such frame: %s", p.Context)
	}
	if p.Viewport == nil {
		return nil, bidi.InvalidArgument("viewport is required")
	}
	ratio := p.DevicePixelRatio
	if ratio == 0 {
		ratio = 1
	}
	if _, err := sess.CDP.SendToSession(ctx, c.CdpSessionID, "Emulation.setDeviceMetricsOverride", map[string]any{
		"width":             p.Viewport.Width,
		"height":            p.Viewport.Height,
		"deviceScaleFactor": ratio,
		"mobile":            false,
	}); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	return map[string]any{}, nil
}

func handleCaptureScreenshot(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Context string `json:"context"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	c, ok := sess.Contexts.Get(p.Context)
	if !ok {
		return nil, bidi.NoSuchFrame("no such frame: %s", p.Context)
	}
	raw, err := sess.CDP.SendToSession(ctx, c.CdpSessionID, "Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return nil, bidi.UnableToCaptureScreen("%v", err)
	}
	var result struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bidi.UnableToCaptureScreen("%v", err)
	}
	return map[string]any{"data": result.Data}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
