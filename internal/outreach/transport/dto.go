package transport

import (
	"time"

	"growth_backend/internal/outreach/domain"
	"growth_backend/internal/outreach/service"

	"github.com/google/uuid"
)

// RetryRequest is the body of POST /sender/retry.
type RetryRequest struct {
	RunID uuid.UUID `json:"runId" validate:"required"`
}

// RetryResponse acknowledges a retry.
type RetryResponse struct {
	OK  bool        `json:"ok"`
	Run RunResponse `json:"run"`
}

// ListRunsQuery filters GET /sender/runs.
type ListRunsQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=pending running completed failed suppressed"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=500"`
}

// CampaignRunRequest is the body of POST /campaigns/:id/sender/run.
type CampaignRunRequest struct {
	Mode  string `json:"mode" validate:"omitempty,oneof=new all"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=500"`
}

// HistoryResponse is one history entry; at is epoch milliseconds.
type HistoryResponse struct {
	At      int64  `json:"at"`
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// RunResponse is one outreach run.
type RunResponse struct {
	ID          uuid.UUID         `json:"id"`
	CampaignID  uuid.UUID         `json:"campaignId"`
	LeadID      uuid.UUID         `json:"leadId"`
	SequenceKey string            `json:"sequenceKey"`
	Status      string            `json:"status"`
	StepIndex   int               `json:"stepIndex"`
	NextAt      int64             `json:"nextAt"`
	History     []HistoryResponse `json:"history"`
	LastError   *string           `json:"lastError"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ListRunsResponse lists runs.
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

// CampaignRunResponse summarizes a campaign sender run.
type CampaignRunResponse struct {
	Touched   int                 `json:"touched"`
	Created   int                 `json:"created"`
	Processed int                 `json:"processed"`
	Results   []service.RunResult `json:"results"`
}

// ToRun maps a run.
func ToRun(r domain.Run) RunResponse {
	history := make([]HistoryResponse, 0, len(r.History))
	for _, h := range r.History {
		history = append(history, HistoryResponse{
			At:      h.At.UnixMilli(),
			Channel: h.Channel,
			OK:      h.OK,
			Message: h.Message,
		})
	}
	return RunResponse{
		ID:          r.ID,
		CampaignID:  r.CampaignID,
		LeadID:      r.LeadID,
		SequenceKey: r.SequenceKey,
		Status:      string(r.Status),
		StepIndex:   r.StepIndex,
		NextAt:      r.NextAt.UnixMilli(),
		History:     history,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ToRuns maps runs.
func ToRuns(runs []domain.Run) []RunResponse {
	out := make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, ToRun(r))
	}
	return out
}

// ToCampaignRun maps a campaign sender run.
func ToCampaignRun(r service.CampaignRunResult) CampaignRunResponse {
	results := r.Results
	if results == nil {
		results = []service.RunResult{}
	}
	return CampaignRunResponse{
		Touched:   r.Touched,
		Created:   r.Created,
		Processed: r.Processed,
		Results:   results,
	}
}
