package track

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Format selects the export encoding.
type Format string

// Export formats.
const (
	// FormatStructured is a JSON envelope holding the full event
	// objects.
	FormatStructured Format = "structured"

	// FormatFlat is CSV with one row per event and the data map
	// collapsed into a single JSON cell.
	FormatFlat Format = "flat"
)

// ErrInvalidFormat is returned for export formats other than
// "structured" or "flat".
var ErrInvalidFormat = errors.New("track: invalid export format")

// ParseFormat validates a wire-level format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatStructured, FormatFlat:
		return Format(s), nil
	case "":
		return FormatStructured, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
}

// ExportResult is the rendered export. When the event count exceeds
// the batch size, Batches holds independently parseable chunks and
// Payload holds the first batch.
type ExportResult struct {
	Format     Format    `json:"format"`
	Payload    string    `json:"payload"`
	Batches    []string  `json:"batches,omitempty"`
	Count      int       `json:"count"`
	ExportedAt time.Time `json:"exported_at"`
}

// structuredEnvelope is the JSON document produced by the structured
// format. It deliberately carries no timestamp so that exporting the
// same events twice yields byte-identical output.
type structuredEnvelope struct {
	Count  int            `json:"count"`
	Events []TrackedEvent `json:"events"`
}

func renderStructured(events []TrackedEvent) (string, error) {
	env := structuredEnvelope{Count: len(events), Events: events}
	if env.Events == nil {
		env.Events = []TrackedEvent{}
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode structured export: %w", err)
	}
	return string(data), nil
}

var flatHeader = []string{"type", "timestamp", "data", "source", "id"}

func renderFlat(events []TrackedEvent) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(flatHeader); err != nil {
		return "", fmt.Errorf("encode flat export: %w", err)
	}
	for _, evt := range events {
		dataCell := ""
		if evt.Data != nil {
			encoded, err := json.Marshal(evt.Data)
			if err != nil {
				return "", fmt.Errorf("encode event data: %w", err)
			}
			dataCell = string(encoded)
		}
		row := []string{
			evt.Type,
			strconv.FormatInt(evt.Timestamp.UnixMilli(), 10),
			dataCell,
			evt.Source,
			evt.ID,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("encode flat export: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("encode flat export: %w", err)
	}
	return buf.String(), nil
}

func renderExport(format Format, events []TrackedEvent, batchSize int) (ExportResult, error) {
	result := ExportResult{
		Format:     format,
		Count:      len(events),
		ExportedAt: time.Now().UTC(),
	}

	render := renderStructured
	if format == FormatFlat {
		render = renderFlat
	}

	if batchSize <= 0 || len(events) <= batchSize {
		payload, err := render(events)
		if err != nil {
			return ExportResult{}, err
		}
		result.Payload = payload
		return result, nil
	}

	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}
		payload, err := render(events[start:end])
		if err != nil {
			return ExportResult{}, err
		}
		result.Batches = append(result.Batches, payload)
	}
	result.Payload = result.Batches[0]
	return result, nil
}
