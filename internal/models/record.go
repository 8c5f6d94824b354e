package models

import (
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// ROI is a normalized region of interest: both corners are expressed as
// fractions of the page width/height, in [0,1].
type ROI struct {
	X0 float64 `yaml:"x0" json:"x0"`
	Y0 float64 `yaml:"y0" json:"y0"`
	X1 float64 `yaml:"x1" json:"x1"`
	Y1 float64 `yaml:"y1" json:"y1"`
}

// FullPage covers the entire page.
var FullPage = ROI{X0: 0, Y0: 0, X1: 1, Y1: 1}

// Valid reports whether the rectangle is inside [0,1] and non-degenerate.
func (r ROI) Valid() bool {
	return r.X0 >= 0 && r.Y0 >= 0 && r.X1 <= 1 && r.Y1 <= 1 && r.X0 < r.X1 && r.Y0 < r.Y1
}

// HardwareItem is one hardware-fitting line of a door sheet.
type HardwareItem struct {
	Name  string `json:"name"`
	Brand string `json:"brand"`
	Model string `json:"model"`
	Qty   int    `json:"qty"`

	qtyValid bool
}

// UnmarshalJSON accepts the quantity as a JSON integer or an
// integer-looking string; anything else marks the item indeterminate so
// Normalize can drop it.
func (h *HardwareItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name  string          `json:"name"`
		Brand string          `json:"brand"`
		Model string          `json:"model"`
		Qty   json.RawMessage `json:"qty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	h.Name, h.Brand, h.Model = raw.Name, raw.Brand, raw.Model
	h.Qty, h.qtyValid = 0, false

	if len(raw.Qty) == 0 {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.Qty, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			h.Qty, h.qtyValid = int(i), true
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Qty, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			h.Qty, h.qtyValid = i, true
		}
	}
	return nil
}

// QtyKnown reports whether the item carried a determinable integer
// quantity. Items built in code (not parsed) count as known.
func (h HardwareItem) QtyKnown() bool { return h.qtyValid }

// NewHardwareItem builds an item with a known quantity.
func NewHardwareItem(name, brand, model string, qty int) HardwareItem {
	return HardwareItem{Name: name, Brand: brand, Model: model, Qty: qty, qtyValid: true}
}

// FinishColor holds the two-sided finish description of a door leaf.
type FinishColor struct {
	PushSide string `json:"push_side"`
	PullSide string `json:"pull_side"`
}

// ExtractionRecord is the structured result of one door specification
// sheet. Dimension fields stay verbatim "W*H" strings.
type ExtractionRecord struct {
	DoorNo        string         `json:"door_no"`
	DoorType      string         `json:"door_type"`
	OpeningSize   string         `json:"opening_size"`
	LeafSize      string         `json:"leaf_size"`
	FrameMaterial string         `json:"frame_material"`
	LeafMaterial  string         `json:"leaf_material"`
	SillMaterial  string         `json:"sill_material"`
	FireCore      string         `json:"fire_core"`
	Glass         string         `json:"glass"`
	FrameSeal     string         `json:"frame_seal"`
	LeafSeal      string         `json:"leaf_seal"`
	HardwareGroup string         `json:"hardware_group"`
	Hardware      []HardwareItem `json:"hardware"`
	FinishColor   FinishColor    `json:"finish_color"`
}

// EmptyRecord is the failure sentinel: a settled entry whose extraction
// never produced data.
func EmptyRecord() *ExtractionRecord {
	return &ExtractionRecord{Hardware: []HardwareItem{}}
}

// IsEmpty reports whether the record is the failure sentinel (or an
// extraction that found nothing at all).
func (r *ExtractionRecord) IsEmpty() bool {
	return r.DoorNo == "" && r.DoorType == "" && r.OpeningSize == "" && r.LeafSize == "" &&
		r.FrameMaterial == "" && r.LeafMaterial == "" && r.SillMaterial == "" &&
		r.FireCore == "" && r.Glass == "" && r.FrameSeal == "" && r.LeafSeal == "" &&
		r.HardwareGroup == "" && len(r.Hardware) == 0 &&
		r.FinishColor.PushSide == "" && r.FinishColor.PullSide == ""
}

var (
	// Bracketed code of a "hardware configuration(XXX)" header. Scanned
	// sheets mix ASCII and full-width parentheses.
	groupCodeRe = regexp.MustCompile(`(?i)hardware\s*configuration\s*[(（]([^)）]*)[)）]`)

	// Leading ordinal decorations on hardware names: circled digits,
	// bracketed numbers, "1." / "1、".
	ordinalRe = regexp.MustCompile(`^\s*(?:[①-⑳]|[(（]\s*\d+\s*[)）]|\d+\s*[.、])\s*`)
)

// ExtractGroupCode returns the bracket contents of a
// "hardware configuration(XXX)" header, or "" when no such header exists.
func ExtractGroupCode(header string) string {
	m := groupCodeRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// StripOrdinal removes leading ordinal decorations from a hardware name.
func StripOrdinal(name string) string {
	for {
		stripped := ordinalRe.ReplaceAllString(name, "")
		if stripped == name {
			return strings.TrimSpace(stripped)
		}
		name = stripped
	}
}

func cleanString(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}

// Normalize re-applies the prompt's cleaning rules so the record is
// correct even when the model ignored one of them: HTML entities are
// reversed, fields trimmed, hardware names stripped of ordinals, items
// without a determinable quantity dropped, and the hardware group
// reduced to the bracket code when a full header leaked through.
func (r *ExtractionRecord) Normalize() {
	r.DoorNo = cleanString(r.DoorNo)
	r.DoorType = cleanString(r.DoorType)
	r.OpeningSize = cleanString(r.OpeningSize)
	r.LeafSize = cleanString(r.LeafSize)
	r.FrameMaterial = cleanString(r.FrameMaterial)
	r.LeafMaterial = cleanString(r.LeafMaterial)
	r.SillMaterial = cleanString(r.SillMaterial)
	r.FireCore = cleanString(r.FireCore)
	r.Glass = cleanString(r.Glass)
	r.FrameSeal = cleanString(r.FrameSeal)
	r.LeafSeal = cleanString(r.LeafSeal)
	r.FinishColor.PushSide = cleanString(r.FinishColor.PushSide)
	r.FinishColor.PullSide = cleanString(r.FinishColor.PullSide)

	group := cleanString(r.HardwareGroup)
	if code := ExtractGroupCode(group); code != "" {
		group = code
	}
	r.HardwareGroup = group

	items := make([]HardwareItem, 0, len(r.Hardware))
	for _, item := range r.Hardware {
		item.Name = StripOrdinal(cleanString(item.Name))
		item.Brand = cleanString(item.Brand)
		item.Model = cleanString(item.Model)
		if !item.QtyKnown() {
			continue
		}
		if item.Name == "" && item.Brand == "" && item.Model == "" {
			continue
		}
		items = append(items, item)
	}
	r.Hardware = items
}
