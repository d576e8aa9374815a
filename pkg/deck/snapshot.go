package deck

import (
	"encoding/json"
	"fmt"
)

// The JSON field names below follow the reader toolchain's wire format
// (PascalCase property names), which is also what the decider sees in tool
// results.

// AnchorInfo tags an element with its token, kind and structural path.
type AnchorInfo struct {
	Anchor string `json:"Anchor"`
	Type   string `json:"Type"`
	Path   string `json:"Path"`
}

// Formatting carries the text attributes the reader extracts. Zero values
// mean the attribute was not set on the element.
type Formatting struct {
	Font   string  `json:"Font,omitempty"`
	Size   float64 `json:"Size,omitempty"`
	Bold   bool    `json:"Bold,omitempty"`
	Italic bool    `json:"Italic,omitempty"`
	Color  string  `json:"Color,omitempty"`
}

// Position is the element's frame in EMUs.
type Position struct {
	X      int64 `json:"X"`
	Y      int64 `json:"Y"`
	Width  int64 `json:"Width"`
	Height int64 `json:"Height"`
}

// Element is one node of a slide's content tree. Bullets nest under their
// list container via Children.
type Element struct {
	Anchor     AnchorInfo  `json:"Anchor"`
	Content    string      `json:"Content"`
	Children   []Element   `json:"Children,omitempty"`
	Formatting *Formatting `json:"Formatting,omitempty"`
	Position   *Position   `json:"Position,omitempty"`
}

// Slide is the full element tree of one slide.
type Slide struct {
	SlideNumber int       `json:"SlideNumber"`
	Title       string    `json:"Title"`
	Elements    []Element `json:"Elements"`
}

// SlideOverview is the shallow per-slide entry of an overview snapshot.
type SlideOverview struct {
	SlideNumber  int      `json:"SlideNumber"`
	Title        string   `json:"Title"`
	ElementCount int      `json:"ElementCount"`
	Anchors      []string `json:"Anchors,omitempty"`
}

// Overview is the whole-deck structure snapshot.
type Overview struct {
	TotalSlides int             `json:"TotalSlides"`
	Slides      []SlideOverview `json:"Slides"`
}

// SlideResult is one entry of a detail read. Exactly one of Slide or Err is
// set; a missing slide is reported in place without failing its batch.
type SlideResult struct {
	SlideNumber int    `json:"SlideNumber"`
	Slide       *Slide `json:"Slide,omitempty"`
	Err         string `json:"Error,omitempty"`
}

// NotFound reports whether this entry is a per-index failure.
func (r SlideResult) NotFound() bool { return r.Err != "" }

// slideDetailEntry is the raw wire form of one detail entry: either the
// slide fields or an Error string.
type slideDetailEntry struct {
	SlideNumber int       `json:"SlideNumber"`
	Title       string    `json:"Title"`
	Elements    []Element `json:"Elements"`
	Error       string    `json:"Error"`
}

// DecodeOverview parses the reader toolchain's overview JSON.
func DecodeOverview(raw []byte) (*Overview, error) {
	var o Overview
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode overview snapshot: %w", err)
	}
	return &o, nil
}

// EncodeDetail renders detail entries back into the reader toolchain's wire
// form: slide objects in request order, per-index failures as
// {SlideNumber, Error} entries.
func EncodeDetail(results []SlideResult) ([]byte, error) {
	entries := make([]any, 0, len(results))
	for _, r := range results {
		if r.NotFound() {
			entries = append(entries, struct {
				SlideNumber int    `json:"SlideNumber"`
				Error       string `json:"Error"`
			}{r.SlideNumber, r.Err})
			continue
		}
		entries = append(entries, r.Slide)
	}
	return json.MarshalIndent(entries, "", "  ")
}

// DecodeDetail parses the reader toolchain's detail JSON: an array of
// per-slide entries with inline per-index errors.
func DecodeDetail(raw []byte) ([]SlideResult, error) {
	var entries []slideDetailEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode detail snapshot: %w", err)
	}
	results := make([]SlideResult, 0, len(entries))
	for _, e := range entries {
		if e.Error != "" {
			results = append(results, SlideResult{SlideNumber: e.SlideNumber, Err: e.Error})
			continue
		}
		results = append(results, SlideResult{
			SlideNumber: e.SlideNumber,
			Slide: &Slide{
				SlideNumber: e.SlideNumber,
				Title:       e.Title,
				Elements:    e.Elements,
			},
		})
	}
	return results, nil
}
