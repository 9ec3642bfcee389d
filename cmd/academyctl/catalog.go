package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alem-hub/alem-academy/internal/domain/course"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
)

// catalogWriter is the authoring side of the course registry.
type catalogWriter = course.Authoring

// catalogFile is the JSON layout accepted by "academyctl publish".
//
//	{
//	  "id": "7f1c...", "title": "Go basics", "description": "...",
//	  "items": [
//	    {"id": "a94e...", "position": 1, "kind": "MODULE", "title": "Intro", "payload_ref": "https://..."}
//	  ]
//	}
type catalogFile struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Items       []catalogItem `json:"items"`
}

type catalogItem struct {
	ID         string `json:"id"`
	Position   int    `json:"position"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	PayloadRef string `json:"payload_ref"`
}

type catalog struct {
	Course course.Course
	Items  []course.ContentItem
}

func readCatalog(r io.Reader) (*catalog, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	courseID, err := shared.ParseEntityID("course", "Publish", f.ID)
	if err != nil {
		return nil, err
	}
	if f.Title == "" {
		return nil, errors.New("course title is required")
	}

	now := time.Now().UTC()
	c := course.Course{ID: courseID, Title: f.Title, Description: f.Description, CreatedAt: now}

	items := make([]course.ContentItem, 0, len(f.Items))
	for i, raw := range f.Items {
		itemID, err := shared.ParseEntityID("course", "Publish", raw.ID)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		kind, err := course.ParseKind(raw.Kind)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		item, err := course.NewContentItem(course.NewContentItemParams{
			ID:         itemID,
			CourseID:   courseID,
			Position:   raw.Position,
			Kind:       kind,
			Title:      raw.Title,
			PayloadRef: raw.PayloadRef,
			CreatedAt:  now,
		})
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, *item)
	}

	outline, err := course.NewOutline(c, items)
	if err != nil {
		return nil, err
	}
	return &catalog{Course: outline.Course, Items: outline.Items}, nil
}

// publish saves the course and every item not yet published. Items already
// stored under the same id are skipped, so a file can be applied again after
// appending items.
func (c *catalog) publish(ctx context.Context, w catalogWriter) (int, error) {
	if err := w.SaveCourse(ctx, &c.Course); err != nil {
		return 0, err
	}

	published := 0
	for i := range c.Items {
		err := w.PublishItem(ctx, &c.Items[i])
		switch {
		case err == nil:
			published++
		case errors.Is(err, shared.ErrPositionTaken):
			return published, fmt.Errorf("item %s: position %d is taken by another item", c.Items[i].ID, c.Items[i].Position)
		case errors.Is(err, shared.ErrAlreadyExists):
		default:
			return published, fmt.Errorf("item %s: %w", c.Items[i].ID, err)
		}
	}
	return published, nil
}
