package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ColumnEventDate is the only required column of the events export.
const ColumnEventDate = "EventDate"

const day = 24 * time.Hour

// Event is a dated geopolitical or economic event. Every column other than
// the date is kept verbatim in Attributes.
type Event struct {
	Date       time.Time         `json:"date"`
	Attributes map[string]string `json:"attributes"`
}

// Events is a date-sorted event list.
type Events struct {
	Items   []Event
	Dropped int
}

// LoadEvents reads an events CSV from path.
func LoadEvents(ctx context.Context, path string) (*Events, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadEvents(ctx, f)
}

// ReadEvents parses an events CSV. Rows with an unparseable date are dropped.
func ReadEvents(ctx context.Context, r io.Reader) (*Events, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrMalformedRow, err)
	}
	cols, err := columnIndex(header, ColumnEventDate)
	if err != nil {
		return nil, err
	}
	dateCol := cols[0]

	out := &Events{}
	for line := 2; ; line++ {
		if line%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		if len(rec) <= dateCol {
			out.Dropped++
			continue
		}
		date, err := ParseDate(rec[dateCol])
		if err != nil {
			out.Dropped++
			continue
		}

		attrs := make(map[string]string, len(rec)-1)
		for j, v := range rec {
			if j == dateCol || j >= len(header) {
				continue
			}
			attrs[strings.TrimSpace(header[j])] = strings.TrimSpace(v)
		}
		out.Items = append(out.Items, Event{Date: date, Attributes: attrs})
	}

	sort.SliceStable(out.Items, func(i, j int) bool {
		return out.Items[i].Date.Before(out.Items[j].Date)
	})
	return out, nil
}

// Near returns the events dated within days of date, in date order.
func (e *Events) Near(date time.Time, days int) []Event {
	if e == nil {
		return nil
	}
	window := time.Duration(days) * day
	var out []Event
	for _, ev := range e.Items {
		if d := ev.Date.Sub(date); d >= -window && d <= window {
			out = append(out, ev)
		}
	}
	return out
}
