// Package detection holds the face detection result model returned by the
// analysis backend, together with the validation applied at the API boundary.
package detection

import (
	"fmt"
	"strconv"
)

// Status is the recognition outcome of a single face.
type Status int

const (
	StatusUnknown Status = iota
	StatusMatch
	StatusLowConfidence
)

// Wire names used by the analysis backend.
const (
	wireMatch         = "Match"
	wireLowConfidence = "Low confidence"
	wireUnknown       = "Unknown"
)

// ParseStatus maps a backend status string to a Status.
// Unrecognized values are coerced to StatusUnknown.
func ParseStatus(s string) Status {
	switch s {
	case wireMatch:
		return StatusMatch
	case wireLowConfidence:
		return StatusLowConfidence
	default:
		return StatusUnknown
	}
}

// String returns the backend spelling of the status.
func (s Status) String() string {
	switch s {
	case StatusMatch:
		return wireMatch
	case StatusLowConfidence:
		return wireLowConfidence
	default:
		return wireUnknown
	}
}

// Key returns a stable identifier for the status (used for palette lookups and JSON).
func (s Status) Key() string {
	switch s {
	case StatusMatch:
		return "match"
	case StatusLowConfidence:
		return "low_confidence"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Box is a face bounding box in natural image pixels.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() int { return b.Right - b.Left }

// Height returns the vertical extent of the box.
func (b Box) Height() int { return b.Bottom - b.Top }

// Validate checks that the box is not inverted and has no negative coordinates.
func (b Box) Validate() error {
	if b.Top < 0 || b.Right < 0 || b.Bottom < 0 || b.Left < 0 {
		return fmt.Errorf("box %d,%d,%d,%d has a negative coordinate", b.Top, b.Right, b.Bottom, b.Left)
	}
	if b.Right < b.Left {
		return fmt.Errorf("box right %d is left of left %d", b.Right, b.Left)
	}
	if b.Bottom < b.Top {
		return fmt.Errorf("box bottom %d is above top %d", b.Bottom, b.Top)
	}
	return nil
}

// Detection is one recognized or unrecognized face region.
type Detection struct {
	Box        Box     `json:"box"`
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"` // 0-100
	Name       string  `json:"name,omitempty"`
	NationalID string  `json:"national_id,omitempty"`
	AvatarURL  string  `json:"avatar_url,omitempty"`
}

// DisplayName returns the person name, or "Unknown" for unmatched faces.
func (d Detection) DisplayName() string {
	if d.Name == "" {
		return wireUnknown
	}
	return d.Name
}

// Label returns the overlay caption: name, status and confidence joined by em dashes.
func (d Detection) Label() string {
	return d.DisplayName() + " — " + d.Status.String() + " — " + FormatConfidence(d.Confidence) + "%"
}

// FormatConfidence renders a confidence without trailing zeros ("92.5", "88").
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// Result is the outcome of one successful analysis. It is replaced wholesale
// by the next successful analysis and never modified in place.
type Result struct {
	ImageURL   string      `json:"result_image_url"`
	Detections []Detection `json:"detections"`
}

// Clone returns a deep copy so callers can not reach the stored slice.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{ImageURL: r.ImageURL}
	if r.Detections != nil {
		out.Detections = make([]Detection, len(r.Detections))
		copy(out.Detections, r.Detections)
	}
	return out
}

// MatchCount returns the number of detections with StatusMatch.
func (r *Result) MatchCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, d := range r.Detections {
		if d.Status == StatusMatch {
			n++
		}
	}
	return n
}
