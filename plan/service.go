package plan

import (
	"context"
	"log/slog"

	"github.com/zhubert/plural-client/logger"
	"github.com/zhubert/plural-client/mcp"
)

const (
	uriPrefix = "plan://"

	// ChangedMethod is the notification the server pushes when a
	// subscribed plan resource changes.
	ChangedMethod = "notifications/resources/updated"
)

// URI returns the resource URI for a plan id
func URI(id string) string {
	return uriPrefix + id
}

// Service exposes the plan tools of one server as typed operations. It is
// stateless; all session handling lives in the underlying client.
type Service struct {
	client *mcp.Client
	log    *slog.Logger
}

// NewService wraps an mcp.Client with the plan tool surface
func NewService(client *mcp.Client) *Service {
	return &Service{
		client: client,
		log:    logger.WithComponent("plan"),
	}
}

// List fetches all plans visible to this session.
func (s *Service) List(ctx context.Context) ([]Plan, error) {
	raw, err := s.client.CallTool(ctx, "list_plans", nil)
	if err != nil {
		return nil, err
	}
	return extractPlans(raw)
}

// Create makes a new plan and returns it as the server recorded it.
func (s *Service) Create(ctx context.Context, title, summary string) (*Plan, error) {
	args := map[string]any{"title": title}
	if summary != "" {
		args["summary"] = summary
	}
	raw, err := s.client.CallTool(ctx, "create_plan", args)
	if err != nil {
		return nil, err
	}
	return extractPlan(raw)
}

// Get fetches a single plan by id.
func (s *Service) Get(ctx context.Context, id string) (*Plan, error) {
	raw, err := s.client.CallTool(ctx, "get_plan", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return extractPlan(raw)
}

// Move advances a plan to another stage. Older servers expect the plan id
// under "planId" rather than "id", hence the argument fallback.
func (s *Service) Move(ctx context.Context, id, stage string) error {
	_, err := s.client.CallToolWithFallback(ctx, "move_plan",
		map[string]any{"id": id, "stage": stage},
		map[string]any{"planId": id, "stage": stage},
	)
	return err
}

// Delete removes a plan.
func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.client.CallTool(ctx, "delete_plan", map[string]any{"id": id})
	return err
}

// AddStep appends a step to a plan.
func (s *Service) AddStep(ctx context.Context, planID, title string) error {
	_, err := s.client.CallTool(ctx, "add_step", map[string]any{
		"planId": planID,
		"title":  title,
	})
	return err
}

// CompleteStep marks a step done.
func (s *Service) CompleteStep(ctx context.Context, planID, stepID string) error {
	_, err := s.client.CallTool(ctx, "complete_step", map[string]any{
		"planId": planID,
		"stepId": stepID,
	})
	return err
}

// AddEvidence attaches a note to a plan. stepID may be empty for
// plan-level evidence.
func (s *Service) AddEvidence(ctx context.Context, planID, stepID, note string) error {
	args := map[string]any{
		"planId": planID,
		"note":   note,
	}
	if stepID != "" {
		args["stepId"] = stepID
	}
	_, err := s.client.CallTool(ctx, "add_evidence", args)
	return err
}

// Content returns a plan's markdown document via its resource URI.
func (s *Service) Content(ctx context.Context, id string) (string, error) {
	return s.client.ReadResource(ctx, URI(id))
}

// Download fetches a plan's file over the side-channel, returning the
// server-reported filename and the file bytes.
func (s *Service) Download(ctx context.Context, id string) (string, []byte, error) {
	return s.client.DownloadPlan(ctx, id)
}

// Upload pushes a plan file to the server.
func (s *Service) Upload(ctx context.Context, filename string, contents []byte) error {
	return s.client.UploadPlan(ctx, filename, contents)
}
