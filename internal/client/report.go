package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/robfarr/markpilot/internal/models"
)

// Report fetches one graded report by id.
func (c *Client) Report(ctx context.Context, id string) (*models.ReportData, error) {
	var report models.ReportData
	if err := c.do(ctx, http.MethodGet, "/api/reports/"+id, nil, &report); err != nil {
		return nil, err
	}
	if report.ID == "" {
		report.ID = id
	}
	if report.Parts == nil {
		report.Parts = []models.PartScore{}
	}
	return &report, nil
}

// DownloadReport streams the PDF rendering of a report into w and returns the
// number of bytes written.
func (c *Client) DownloadReport(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/api/reports/"+id+"/download", nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.attachSession(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &APIError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, c.decodeError(resp.StatusCode, raw)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("stream report: %w", err)
	}
	return n, nil
}
