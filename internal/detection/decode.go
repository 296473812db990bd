package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/face-monitor/internal/constants"
)

// ErrMalformed is returned when a response payload does not have the expected shape.
var ErrMalformed = errors.New("malformed detection payload")

// wireResponse is the analysis endpoint success body.
type wireResponse struct {
	Detections *[]wireDetection `json:"detections"`
	ImageURL   string           `json:"image_url"`
}

type wireDetection struct {
	Box        []float64 `json:"box"` // [top, right, bottom, left]
	Status     string    `json:"status"`
	Confidence *float64  `json:"confidence"`
	Name       *string   `json:"name"`
	NationalID *string   `json:"national_id"`
	AvatarURL  *string   `json:"avatar_url"`
}

// URLResolver turns a possibly relative URL from the backend into an absolute one.
type URLResolver func(raw string) string

// Decode parses and validates an analysis response body.
// resolve is applied to image_url and avatar_url values; nil leaves them untouched.
func Decode(body []byte, resolve URLResolver) (*Result, error) {
	if resolve == nil {
		resolve = func(s string) string { return s }
	}

	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.Detections == nil {
		return nil, fmt.Errorf("%w: missing detections", ErrMalformed)
	}

	result := &Result{
		Detections: make([]Detection, 0, len(*resp.Detections)),
	}
	if resp.ImageURL != "" {
		result.ImageURL = resolve(resp.ImageURL)
	}

	for i, wd := range *resp.Detections {
		d, err := wd.toDetection()
		if err != nil {
			return nil, fmt.Errorf("%w: detection %d: %v", ErrMalformed, i, err)
		}
		if d.AvatarURL != "" {
			d.AvatarURL = resolve(d.AvatarURL)
		}
		result.Detections = append(result.Detections, d)
	}

	return result, nil
}

func (wd wireDetection) toDetection() (Detection, error) {
	box, err := parseBox(wd.Box)
	if err != nil {
		return Detection{}, err
	}

	if wd.Confidence == nil {
		return Detection{}, errors.New("missing confidence")
	}
	c := *wd.Confidence
	if math.IsNaN(c) || c < constants.MinConfidence || c > constants.MaxConfidence {
		return Detection{}, fmt.Errorf("confidence %v out of range", c)
	}

	d := Detection{
		Box:        box,
		Status:     ParseStatus(wd.Status),
		Confidence: c,
	}
	if wd.Name != nil {
		d.Name = *wd.Name
	}
	if wd.NationalID != nil {
		d.NationalID = *wd.NationalID
	}
	if wd.AvatarURL != nil {
		d.AvatarURL = *wd.AvatarURL
	}
	return d, nil
}

// parseBox converts the [top, right, bottom, left] array into a Box.
// Fractional coordinates are rounded to the nearest pixel.
func parseBox(raw []float64) (Box, error) {
	if len(raw) != 4 {
		return Box{}, fmt.Errorf("box has %d values, want 4", len(raw))
	}
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Box{}, errors.New("box has non-finite value")
		}
		if v < 0 || v > constants.MaxBoxCoordinate {
			return Box{}, fmt.Errorf("box value %g out of range [0, %d]", v, constants.MaxBoxCoordinate)
		}
	}
	box := Box{
		Top:    int(math.Round(raw[0])),
		Right:  int(math.Round(raw[1])),
		Bottom: int(math.Round(raw[2])),
		Left:   int(math.Round(raw[3])),
	}
	if err := box.Validate(); err != nil {
		return Box{}, err
	}
	return box, nil
}
