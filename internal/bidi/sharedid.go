package bidi

import (
	"fmt"
	"regexp"
)

// SharedID is a stable reference to a DOM node (§GLOSSARY): either the
// current `f.<frameId>.d.<documentId>.e.<backendNodeId>` form, or the
// legacy `<documentId>_element_<backendNodeId>` form, which has no
// frame component.
type SharedID struct {
	FrameID       string // "" for a legacy-format id
	DocumentID    string
	BackendNodeID int64
}

var (
	sharedIDPattern       = regexp.MustCompile(`^f\.([^.]+)\.d\.([^.]+)\.e\.(-?\d+)$`)
	legacySharedIDPattern = regexp.MustCompile(`^([^_]+)_element_(-?\d+)$`)
)

// GetSharedID encodes id into its wire string.
func GetSharedID(id SharedID) string {
	return fmt.Sprintf("f.%s.d.%s.e.%d", id.FrameID, id.DocumentID, id.BackendNodeID)
}

// ParseSharedID decodes a wire sharedId string, accepting both the
// current and legacy formats. A malformed string reports ok=false ("no
// match").
func ParseSharedID(s string) (id SharedID, ok bool) {
	if m := sharedIDPattern.FindStringSubmatch(s); m != nil {
		var backendNodeID int64
		if _, err := fmt.Sscanf(m[3], "%d", &backendNodeID); err != nil {
			return SharedID{}, false
		}
		return SharedID{FrameID: m[1], DocumentID: m[2], BackendNodeID: backendNodeID}, true
	}
	if m := legacySharedIDPattern.FindStringSubmatch(s); m != nil {
		var backendNodeID int64
		if _, err := fmt.Sscanf(m[2], "%d", &backendNodeID); err != nil {
			return SharedID{}, false
		}
		return SharedID{DocumentID: m[1], BackendNodeID: backendNodeID}, true
	}
	return SharedID{}, false
}
