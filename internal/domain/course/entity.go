// Package course contains the content item registry: courses and their ordered
// modules and workshops. The core only reads this data; authoring happens
// elsewhere.
package course

import (
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Kind is the content item variant.
type Kind string

const (
	// KindModule is a lesson backed by a video or document.
	KindModule Kind = "MODULE"

	// KindWorkshop is a hands-on assignment with instructions.
	KindWorkshop Kind = "WORKSHOP"
)

// IsValid checks that the kind is one of the known variants.
func (k Kind) IsValid() bool {
	switch k {
	case KindModule, KindWorkshop:
		return true
	default:
		return false
	}
}

// Label returns the display name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindModule:
		return "Module"
	case KindWorkshop:
		return "Workshop"
	default:
		return "Unknown"
	}
}

// PayloadLabel names what the opaque payload reference points to for this kind.
func (k Kind) PayloadLabel() string {
	switch k {
	case KindModule:
		return "content_url"
	case KindWorkshop:
		return "instructions"
	default:
		return "payload"
	}
}

// ParseKind parses a kind, accepting any letter case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", shared.ErrInvalidItemKind
	}
	return k, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Course is the owner of an ordered set of content items.
type Course struct {
	ID          string
	Title       string
	Description string
	CreatedAt   time.Time
}

// ContentItem is a single module or workshop. Items are immutable once published.
type ContentItem struct {
	ID       string
	CourseID string

	// Position orders items inside a course. Unique per course, starting at 1.
	Position int

	Kind  Kind
	Title string

	// PayloadRef is a content URL or workshop instructions. Not interpreted here.
	PayloadRef string

	CreatedAt time.Time
}

// NewContentItemParams holds the fields required to publish an item.
type NewContentItemParams struct {
	ID         string
	CourseID   string
	Position   int
	Kind       Kind
	Title      string
	PayloadRef string
	CreatedAt  time.Time
}

// NewContentItem validates params and builds an item.
func NewContentItem(p NewContentItemParams) (*ContentItem, error) {
	if p.ID == "" || p.CourseID == "" {
		return nil, shared.NewDomainError("course", "NewContentItem", shared.ErrEmptyValue, "item and course ids are required")
	}
	if p.Position < 1 {
		return nil, shared.ErrInvalidPosition
	}
	if !p.Kind.IsValid() {
		return nil, shared.ErrInvalidItemKind
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &ContentItem{
		ID:         p.ID,
		CourseID:   p.CourseID,
		Position:   p.Position,
		Kind:       p.Kind,
		Title:      strings.TrimSpace(p.Title),
		PayloadRef: p.PayloadRef,
		CreatedAt:  createdAt,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTLINE
// ══════════════════════════════════════════════════════════════════════════════

// Outline is the ordered curriculum of one course.
type Outline struct {
	Course Course
	Items  []ContentItem
}

// NewOutline sorts items by position. Duplicate positions or items from
// another course are rejected, so the ordering is always total.
func NewOutline(c Course, items []ContentItem) (*Outline, error) {
	sorted := make([]ContentItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	for i := range sorted {
		if sorted[i].CourseID != c.ID {
			return nil, shared.NewDomainError("course", "NewOutline", shared.ErrInvalidInput, "item belongs to another course")
		}
		if i > 0 && sorted[i].Position == sorted[i-1].Position {
			return nil, shared.NewDomainError("course", "NewOutline", shared.ErrInvalidInput, "duplicate item position")
		}
	}
	return &Outline{Course: c, Items: sorted}, nil
}

// Count returns the number of items N.
func (o *Outline) Count() int {
	return len(o.Items)
}

// indexOf returns the slice index of the item at position, or -1.
func (o *Outline) indexOf(position int) int {
	i := sort.Search(len(o.Items), func(i int) bool { return o.Items[i].Position >= position })
	if i < len(o.Items) && o.Items[i].Position == position {
		return i
	}
	return -1
}

// ItemAt returns the item at position.
func (o *Outline) ItemAt(position int) (*ContentItem, error) {
	i := o.indexOf(position)
	if i < 0 {
		return nil, shared.ErrItemNotFound
	}
	item := o.Items[i]
	return &item, nil
}

// Neighbors returns the previous and next items around position. Either is nil
// at the corresponding boundary.
func (o *Outline) Neighbors(position int) (prev, next *ContentItem, err error) {
	i := o.indexOf(position)
	if i < 0 {
		return nil, nil, shared.ErrItemNotFound
	}
	if i > 0 {
		p := o.Items[i-1]
		prev = &p
	}
	if i+1 < len(o.Items) {
		n := o.Items[i+1]
		next = &n
	}
	return prev, next, nil
}
