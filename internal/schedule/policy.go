// Package schedule derives reminder occurrences from an invoice due date.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/charlesng35/invoicereminder/internal/models"
)

// ErrUnknownType is returned when a reminder type has no configured offset.
var ErrUnknownType = errors.New("schedule: unknown reminder type")

// Offset positions a reminder type relative to the due date.
type Offset struct {
	Days        int    `json:"days"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Occurrence is one reminder the policy produces for a due date.
type Occurrence struct {
	Type          models.ReminderType
	ScheduledDate time.Time
}

// TypeInfo describes a configured reminder type for display.
type TypeInfo struct {
	Type        models.ReminderType `json:"type"`
	Days        int                 `json:"days"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
}

// Policy maps reminder types to their offsets. It is immutable after construction.
type Policy struct {
	offsets map[models.ReminderType]Offset
	order   []models.ReminderType
}

// DefaultOffsets returns the standard three-reminder cadence.
func DefaultOffsets() map[models.ReminderType]Offset {
	return map[models.ReminderType]Offset{
		models.ReminderBeforeDue: {Days: -3, Label: "Before Due", Description: "3 days before the invoice is due"},
		models.ReminderOnDue:     {Days: 0, Label: "On Due Date", Description: "On the day the invoice is due"},
		models.ReminderAfterDue:  {Days: 3, Label: "After Due", Description: "3 days after the invoice is due"},
	}
}

// NewPolicy builds a policy from the supplied offsets. Unknown types are rejected.
// An empty map yields the default cadence.
func NewPolicy(offsets map[models.ReminderType]Offset) (*Policy, error) {
	if len(offsets) == 0 {
		offsets = DefaultOffsets()
	}

	p := &Policy{offsets: make(map[models.ReminderType]Offset, len(offsets))}
	for typ, offset := range offsets {
		if !typ.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
		}
		p.offsets[typ] = offset
	}
	for _, typ := range models.ReminderTypes {
		if _, ok := p.offsets[typ]; ok {
			p.order = append(p.order, typ)
		}
	}
	return p, nil
}

// DefaultPolicy returns a policy with the default cadence.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(nil)
	return p
}

// Occurrences returns every configured reminder for the due date in canonical order.
func (p *Policy) Occurrences(due time.Time) []Occurrence {
	out := make([]Occurrence, 0, len(p.order))
	for _, typ := range p.order {
		out = append(out, Occurrence{
			Type:          typ,
			ScheduledDate: due.AddDate(0, 0, p.offsets[typ].Days),
		})
	}
	return out
}

// ScheduledDate returns the send date for a single reminder type.
func (p *Policy) ScheduledDate(typ models.ReminderType, due time.Time) (time.Time, error) {
	offset, ok := p.offsets[typ]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return due.AddDate(0, 0, offset.Days), nil
}

// Label returns the display label, falling back to the raw type string.
func (p *Policy) Label(typ models.ReminderType) string {
	if offset, ok := p.offsets[typ]; ok && offset.Label != "" {
		return offset.Label
	}
	return string(typ)
}

// Types lists the configured reminder types with their metadata.
func (p *Policy) Types() []TypeInfo {
	out := make([]TypeInfo, 0, len(p.order))
	for _, typ := range p.order {
		offset := p.offsets[typ]
		out = append(out, TypeInfo{
			Type:        typ,
			Days:        offset.Days,
			Label:       offset.Label,
			Description: offset.Description,
		})
	}
	return out
}
