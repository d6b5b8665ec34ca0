package api

import (
	"context"
	"fmt"

	"github.com/helixir/review-console/internal/protocol"
)

// Typed wrappers over the workflow endpoints. The synchronizer and the
// CLI both go through these; nothing else builds workflow paths.

// ListWorkflows fetches every workflow visible to the operator.
func (c *Client) ListWorkflows(ctx context.Context) ([]protocol.Workflow, error) {
	var out []protocol.Workflow
	if err := c.Get(ctx, "/api/workflows", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWorkflow launches a new run from a template.
func (c *Client) CreateWorkflow(ctx context.Context, req protocol.CreateWorkflowRequest) (*protocol.Workflow, error) {
	var out protocol.Workflow
	if err := c.Post(ctx, "/api/workflows", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWorkflow fetches the authoritative status of one workflow.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*protocol.Workflow, error) {
	var out protocol.Workflow
	if err := c.Get(ctx, "/api/workflows/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Intervene posts a generic intervention (pause, resume, cancel,
// approve, inject_note) against a workflow.
func (c *Client) Intervene(ctx context.Context, id string, req protocol.InterveneRequest) error {
	return c.Post(ctx, fmt.Sprintf("/api/workflows/%s/intervene", id), req, nil)
}

// ResumeWorkflow resumes a run, optionally topping up its budget.
func (c *Client) ResumeWorkflow(ctx context.Context, id string, topup *float64) error {
	return c.Post(ctx, fmt.Sprintf("/api/workflows/%s/resume", id), protocol.ResumeRequest{BudgetTopup: topup}, nil)
}

// RespondDirection answers a direction check.
func (c *Client) RespondDirection(ctx context.Context, id, response string) error {
	return c.Post(ctx, fmt.Sprintf("/api/workflows/%s/direction", id), protocol.DirectionRequest{Response: response}, nil)
}

// RerunStep re-queues a specific step.
func (c *Client) RerunStep(ctx context.Context, id, stepID string) error {
	return c.Post(ctx, fmt.Sprintf("/api/workflows/%s/steps/%s/rerun", id, stepID), nil, nil)
}

// SkipStep marks a specific step as skipped.
func (c *Client) SkipStep(ctx context.Context, id, stepID string) error {
	return c.Post(ctx, fmt.Sprintf("/api/workflows/%s/steps/%s/skip", id, stepID), nil, nil)
}
