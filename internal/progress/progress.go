// Package progress owns per-video watch progress: the record model, the
// store that mutates it, and its key-value persistence.
package progress

import (
	"encoding/json"
	"fmt"

	"github.com/example/watchtrack/internal/interval"
)

// VideoProgress is the tracked state for one video. TotalWatchedTime and
// PercentWatched are derived from Intervals and recomputed on every
// mutation, never set independently. LastPosition is the playback head,
// unrelated to coverage.
//
// JSON field names follow the persisted wire format, which predates this
// service; existing blobs must keep loading.
type VideoProgress struct {
	VideoID          string              `json:"videoId"`
	Intervals        []interval.Interval `json:"intervals"`
	TotalWatchedTime float64             `json:"totalWatchedTime"`
	TotalDuration    float64             `json:"totalDuration"`
	PercentWatched   float64             `json:"percentWatched"`
	LastPosition     float64             `json:"lastPosition"`
}

func (p VideoProgress) clone() VideoProgress {
	if p.Intervals != nil {
		ivs := make([]interval.Interval, len(p.Intervals))
		copy(ivs, p.Intervals)
		p.Intervals = ivs
	}
	return p
}

// storedEntry is one element of the persisted payload: a ["videoId", record]
// pair. The pair-list shape is the established storage format.
type storedEntry struct {
	VideoID string
	Record  VideoProgress
}

func (e storedEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.VideoID, e.Record})
}

func (e *storedEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("progress entry: expected [id, record] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.VideoID); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &e.Record)
}

func encodeEntries(records map[string]VideoProgress) (string, error) {
	entries := make([]storedEntry, 0, len(records))
	for id, rec := range records {
		entries = append(entries, storedEntry{VideoID: id, Record: rec})
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeEntries(payload string) (map[string]VideoProgress, error) {
	var entries []storedEntry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		return nil, err
	}
	records := make(map[string]VideoProgress, len(entries))
	for _, e := range entries {
		records[e.VideoID] = e.Record
	}
	return records, nil
}
