package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

var csvHeader = []string{"at", "period", "action", "actor_id", "previous_status", "status", "summary", "reason"}

// WriteCSV renders history entries as CSV with CRLF line endings.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		actor := ""
		if e.ActorID != 0 {
			actor = strconv.FormatInt(e.ActorID, 10)
		}
		record := []string{
			e.At.UTC().Format(time.RFC3339),
			e.Period.String(),
			e.Action,
			actor,
			string(e.Note.PreviousStatus),
			string(e.Note.Status),
			e.Note.Summary,
			e.Note.Reason,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
