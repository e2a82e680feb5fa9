package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
)

// Source lists the registry entries to back up. *registry.Registry
// satisfies it.
type Source interface {
	List() ([]model.TutorConfig, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	TutorCount int       `json:"tutor_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string            `json:"type"`
	Data model.TutorConfig `json:"data"`
}

// ExportJSONL writes every registry entry as JSONL to w, sorted by external
// id and preceded by a header line.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tutors, err := src.List()
	if err != nil {
		return fmt.Errorf("list tutors: %w", err)
	}
	sort.Slice(tutors, func(i, j int) bool {
		return tutors[i].ExternalID < tutors[j].ExternalID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		TutorCount: len(tutors),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, t := range tutors {
		if err := enc.Encode(record{Type: "tutor", Data: t}); err != nil {
			return fmt.Errorf("encode tutor %s: %w", t.ExternalID, err)
		}
	}
	return nil
}
