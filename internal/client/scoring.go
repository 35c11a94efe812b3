package client

import (
	"context"
	"net/http"

	"github.com/robfarr/markpilot/internal/models"
)

// AnalysisResult is what the analysis pipeline extracted from an assignment.
type AnalysisResult struct {
	Summary     string   `json:"summary"`
	WordCount   int      `json:"wordCount"`
	Topics      []string `json:"topics"`
	Suggestions []string `json:"suggestions"`
}

// ScoreRequest names the inputs to a scoring run. AssignmentID is the
// upload service's savedAs identifier; everything else is optional.
type ScoreRequest struct {
	AssignmentID string `json:"assignmentFileId"`
	RubricID     string `json:"rubricFileId,omitempty"`
	Guidelines   string `json:"guidelines,omitempty"`
	CustomRubric string `json:"customRubric,omitempty"`
}

// ScoringResult is one graded submission as returned by score/history/save.
type ScoringResult = models.ReportData

// Analyze runs the analysis stage on an uploaded assignment.
func (c *Client) Analyze(ctx context.Context, assignmentID, guidelines string) (*AnalysisResult, error) {
	body := map[string]string{"assignmentFileId": assignmentID}
	if guidelines != "" {
		body["guidelines"] = guidelines
	}

	var result AnalysisResult
	if err := c.do(ctx, http.MethodPost, "/api/scoring/analyze", body, &result); err != nil {
		return nil, err
	}
	// A partial backend response must never crash a consumer.
	if result.Topics == nil {
		result.Topics = []string{}
	}
	if result.Suggestions == nil {
		result.Suggestions = []string{}
	}
	return &result, nil
}

// Score runs the scoring stage and returns the graded result.
func (c *Client) Score(ctx context.Context, req ScoreRequest) (*ScoringResult, error) {
	var result ScoringResult
	if err := c.do(ctx, http.MethodPost, "/api/scoring/score", req, &result); err != nil {
		return nil, err
	}
	if result.Parts == nil {
		result.Parts = []models.PartScore{}
	}
	return &result, nil
}

// History returns every graded assignment belonging to the session user, in
// backend order.
func (c *Client) History(ctx context.Context) ([]models.HistoryAssignment, error) {
	var result struct {
		Assignments []models.HistoryAssignment `json:"assignments"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/scoring/history", nil, &result); err != nil {
		return nil, err
	}
	if result.Assignments == nil {
		result.Assignments = []models.HistoryAssignment{}
	}
	return result.Assignments, nil
}

// Save persists a scoring result under an assignment name and returns the
// report id issued by the backend.
func (c *Client) Save(ctx context.Context, result *ScoringResult, assignmentName string) (string, error) {
	body := struct {
		Result         *ScoringResult `json:"result"`
		AssignmentName string         `json:"assignmentName"`
	}{result, assignmentName}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/scoring/save", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
