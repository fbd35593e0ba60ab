// Package azure implements the work item tracker on Azure DevOps Boards
package azure

import (
	"context"
	"fmt"
	"sync"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/webapi"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/workitemtracking"
	"go.uber.org/zap"

	"github.com/clintrovert/boardbridge/pkg/types"
)

// workItemClient is the subset of the work item tracking API the tracker uses
type workItemClient interface {
	CreateWorkItem(context.Context, workitemtracking.CreateWorkItemArgs) (*workitemtracking.WorkItem, error)
	GetWorkItem(context.Context, workitemtracking.GetWorkItemArgs) (*workitemtracking.WorkItem, error)
	UpdateWorkItem(context.Context, workitemtracking.UpdateWorkItemArgs) (*workitemtracking.WorkItem, error)
	AddComment(context.Context, workitemtracking.AddCommentArgs) (*workitemtracking.Comment, error)
}

// Client wraps the Azure DevOps work item tracking API
type Client struct {
	project string
	logger  *zap.Logger
	connect func(ctx context.Context) (workItemClient, error)

	mu  sync.Mutex
	wit workItemClient
}

// NewClient creates a new Azure DevOps client. The connection is opened on
// first use
func NewClient(orgURL, token, project string, logger *zap.Logger) *Client {
	connection := azuredevops.NewPatConnection(orgURL, token)

	return &Client{
		project: project,
		logger:  logger,
		connect: func(ctx context.Context) (workItemClient, error) {
			return workitemtracking.NewClient(ctx, connection)
		},
	}
}

// client returns the shared work item client, connecting if needed. A failed
// connection is retried on the next call
func (c *Client) client(ctx context.Context) (workItemClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wit != nil {
		return c.wit, nil
	}

	wit, err := c.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to azure devops: %w", err)
	}

	c.logger.Info("connected to azure devops", zap.String("project", c.project))
	c.wit = wit
	return wit, nil
}

// CreateWorkItem creates a work item of the given type
func (c *Client) CreateWorkItem(ctx context.Context, workType string, patch []types.FieldPatch) (int, error) {
	wit, err := c.client(ctx)
	if err != nil {
		return 0, err
	}

	document := toDocument(patch)
	item, err := wit.CreateWorkItem(ctx, workitemtracking.CreateWorkItemArgs{
		Document: &document,
		Project:  &c.project,
		Type:     &workType,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", workType, err)
	}
	if item == nil || item.Id == nil {
		return 0, fmt.Errorf("create %s returned no id", workType)
	}

	return *item.Id, nil
}

// GetWorkItem returns the fields of a work item
func (c *Client) GetWorkItem(ctx context.Context, id int) (map[string]any, error) {
	wit, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	item, err := wit.GetWorkItem(ctx, workitemtracking.GetWorkItemArgs{
		Id:      &id,
		Project: &c.project,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}

	if item == nil || item.Fields == nil {
		return map[string]any{}, nil
	}
	return *item.Fields, nil
}

// UpdateWorkItem applies patch to a work item
func (c *Client) UpdateWorkItem(ctx context.Context, id int, patch []types.FieldPatch) error {
	wit, err := c.client(ctx)
	if err != nil {
		return err
	}

	document := toDocument(patch)
	_, err = wit.UpdateWorkItem(ctx, workitemtracking.UpdateWorkItemArgs{
		Document: &document,
		Id:       &id,
		Project:  &c.project,
	})
	if err != nil {
		return fmt.Errorf("failed to update work item: %w", err)
	}

	return nil
}

// AddComment adds a discussion comment to a work item
func (c *Client) AddComment(ctx context.Context, id int, text string) error {
	wit, err := c.client(ctx)
	if err != nil {
		return err
	}

	_, err = wit.AddComment(ctx, workitemtracking.AddCommentArgs{
		Request:    &workitemtracking.CommentCreate{Text: &text},
		Project:    &c.project,
		WorkItemId: &id,
	})
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	return nil
}

func toDocument(patch []types.FieldPatch) []webapi.JsonPatchOperation {
	document := make([]webapi.JsonPatchOperation, 0, len(patch))
	for _, p := range patch {
		op := operation(p.Op)
		path := p.Path()
		document = append(document, webapi.JsonPatchOperation{
			Op:    &op,
			Path:  &path,
			Value: p.Value,
		})
	}
	return document
}

func operation(op string) webapi.Operation {
	switch op {
	case string(webapi.OperationValues.Replace):
		return webapi.OperationValues.Replace
	case string(webapi.OperationValues.Remove):
		return webapi.OperationValues.Remove
	default:
		return webapi.OperationValues.Add
	}
}
