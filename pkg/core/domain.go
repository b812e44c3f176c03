// Package core holds the churn domain: records, mutations, the store ports
// and the coordinator that keeps a record set under continuous background
// churn.
package core

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// ID is the store-assigned identity of a record.
// Identities are strictly increasing and never reused, even after delete.
type ID int64

// Record is an immutable snapshot of a stored row.
// Modifications are expressed as copies (see WithColor and Toggled) that are
// submitted back to the store as updates.
type Record struct {
	ID        ID        `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Date      time.Time `json:"date"`
	IsRead    bool      `json:"is_read"`
	Text      string    `json:"text"`
	Color     *int      `json:"color,omitempty"`
}

// WithColor returns a copy of r carrying the given color tag.
func (r Record) WithColor(tag int) Record {
	r.Color = &tag
	return r
}

// Toggled returns a copy of r with IsRead inverted.
func (r Record) Toggled() Record {
	r.IsRead = !r.IsRead
	return r
}

// Range is an inclusive interval [Lo, Hi] over record offsets.
type Range struct {
	Lo int `json:"lo" yaml:"lo"`
	Hi int `json:"hi" yaml:"hi"`
}

// Valid reports whether the range selects at least one offset.
func (r Range) Valid() bool {
	return r.Lo >= 0 && r.Hi >= r.Lo
}

// Len returns the number of offsets covered by the range.
func (r Range) Len() int {
	if !r.Valid() {
		return 0
	}
	return r.Hi - r.Lo + 1
}

// Contains reports whether offset i lies within the range.
func (r Range) Contains(i int) bool {
	return r.Valid() && i >= r.Lo && i <= r.Hi
}

// Random returns a uniformly chosen offset within the range.
// The range must be valid.
func (r Range) Random() int {
	return r.Lo + rand.IntN(r.Len())
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Lo, r.Hi)
}

// Palette lists the display colors a record's color tag indexes into.
var Palette = []string{
	"#2aa3b8", // cyan
	"#9a7fd1", // lilac
	"#d9738c", // rose
	"#4f9d5d", // green
}

// RandomColor returns a random palette index.
func RandomColor() int {
	return rand.IntN(len(Palette))
}

// ColorHex resolves a color tag to its hex value.
// Unknown or missing tags resolve to an empty string.
func ColorHex(tag *int) string {
	if tag == nil || *tag < 0 || *tag >= len(Palette) {
		return ""
	}
	return Palette[*tag]
}

const (
	sampleFirstName = "Firstname"
	sampleLastName  = "Lastname"
	sampleText      = "Some sample text"

	// sampleWindow bounds how far in the past a synthetic record's date may lie.
	sampleWindow = 1_000_000 * time.Millisecond
)

// NewSampleRecord builds a synthetic record with a random date within the
// recent window and a random read flag. It has no identity and no color.
func NewSampleRecord(now time.Time) Record {
	offset := time.Duration(rand.Int64N(int64(sampleWindow)))
	return Record{
		FirstName: sampleFirstName,
		LastName:  sampleLastName,
		Date:      time.UnixMilli(now.Add(-offset).UnixMilli()),
		IsRead:    rand.IntN(2) == 1,
		Text:      sampleText,
	}
}
