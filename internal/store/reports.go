package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/simloom/internal/ir"
)

// StoredReport is one entry of a workspace's report log.
type StoredReport struct {
	Seq       int64           `json:"seq"`
	RequestID string          `json:"request_id"`
	Report    json.RawMessage `json:"report"`
	CreatedAt time.Time       `json:"created_at"`
}

// AppendReport logs a request report for workspace id. The workspace must
// already exist. Appending the same request id twice is a no-op.
func (s *Store) AppendReport(ctx context.Context, id, requestID string, report json.RawMessage) error {
	if requestID == "" {
		return ir.SchemaErrorf("report", "request id is required")
	}
	if !json.Valid(report) {
		return ir.SchemaErrorf("report", "report for request %s is not valid JSON", requestID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (workspace_id, request_id, report, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, request_id) DO NOTHING
	`, id, requestID, string(report), s.stamp())
	if err != nil {
		return fmt.Errorf("append report %s to %s: %w", requestID, id, err)
	}
	return nil
}

// Reports returns the report log of workspace id in append order.
// Returns an empty slice (not nil) when nothing was logged.
func (s *Store) Reports(ctx context.Context, id string) ([]StoredReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, request_id, report, created_at
		FROM reports
		WHERE workspace_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := []StoredReport{}
	for rows.Next() {
		var (
			r                 StoredReport
			report, createdAt string
		)
		if err := rows.Scan(&r.Seq, &r.RequestID, &report, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Report = json.RawMessage(report)
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("scan report %s: created_at: %w", r.RequestID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}
