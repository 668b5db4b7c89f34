package scheduler

import (
	"encoding/json"
	"fmt"

	"growth_backend/internal/cron"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskOutreachProcessDue = "outreach:process_due"

const TaskAudienceGlobalRollup = "audience:global_rollup"

const TaskAudienceActionsRun = "audience:actions_run"

type ProcessDuePayload struct {
	Limit int `json:"limit,omitempty"`
}

type GlobalRollupPayload struct {
	WithinDays int `json:"withinDays,omitempty"`
	Limit      int `json:"limit,omitempty"`
}

type ActionsRunPayload struct {
	TenantID   string  `json:"tenantId"`
	CampaignID *string `json:"campaignId,omitempty"`
}

func NewProcessDueTask(payload ProcessDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutreachProcessDue, data, asynq.MaxRetry(0)), nil
}

func ParseProcessDuePayload(task *asynq.Task) (ProcessDuePayload, error) {
	var payload ProcessDuePayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessDuePayload{}, err
	}
	return payload, nil
}

func NewGlobalRollupTask(payload GlobalRollupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAudienceGlobalRollup, data, asynq.MaxRetry(0)), nil
}

func ParseGlobalRollupPayload(task *asynq.Task) (GlobalRollupPayload, error) {
	var payload GlobalRollupPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GlobalRollupPayload{}, err
	}
	return payload, nil
}

// NewActionsRunTask builds the task for one action scope. Identical scopes
// produce identical payloads so asynq.Unique can collapse them.
func NewActionsRunTask(scope cron.ActionScope) (*asynq.Task, error) {
	payload := ActionsRunPayload{TenantID: scope.TenantID.String()}
	if scope.CampaignID != nil {
		id := scope.CampaignID.String()
		payload.CampaignID = &id
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAudienceActionsRun, data), nil
}

func ParseActionsRunPayload(task *asynq.Task) (cron.ActionScope, error) {
	var payload ActionsRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return cron.ActionScope{}, err
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return cron.ActionScope{}, fmt.Errorf("tenant id: %w", err)
	}
	scope := cron.ActionScope{TenantID: tenantID}
	if payload.CampaignID != nil {
		campaignID, err := uuid.Parse(*payload.CampaignID)
		if err != nil {
			return cron.ActionScope{}, fmt.Errorf("campaign id: %w", err)
		}
		scope.CampaignID = &campaignID
	}
	return scope, nil
}
