// Package jira implements the work item tracker on Jira
package jira

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/clintrovert/boardbridge/internal/config"
	"github.com/clintrovert/boardbridge/pkg/types"
)

// Client wraps Jira API client functionality
type Client struct {
	client     *jira.Client
	logger     *zap.Logger
	projectKey string
	work       config.WorkConfig
}

// NewClient creates a new Jira client
func NewClient(baseURL, username, apiToken, projectKey string, work config.WorkConfig, logger *zap.Logger) (*Client, error) {
	tp := jira.BasicAuthTransport{
		Username: username,
		Password: apiToken,
	}

	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	return &Client{
		client:     client,
		logger:     logger,
		projectKey: projectKey,
		work:       work,
	}, nil
}

// issueUpdate is a field patch translated to Jira operations
type issueUpdate struct {
	fields   map[string]interface{}
	assignee *string
	status   string
}

// translate maps work item fields onto Jira. The area path becomes a
// component and the iteration path has no Jira counterpart
func (c *Client) translate(patch []types.FieldPatch) issueUpdate {
	update := issueUpdate{fields: map[string]interface{}{}}
	for _, p := range patch {
		switch p.Field {
		case types.FieldTitle:
			update.fields["summary"] = p.Value
		case c.work.BugDescriptionField, c.work.StoryDescriptionField:
			update.fields["description"] = p.Value
		case types.FieldAreaPath:
			if p.Value != "" {
				update.fields["components"] = []map[string]string{{"name": p.Value}}
			}
		case types.FieldAssignedTo:
			value := p.Value
			update.assignee = &value
		case types.FieldState:
			update.status = p.Value
		case types.FieldIterationPath:
		default:
			c.logger.Debug("ignoring unsupported field", zap.String("field", p.Field))
		}
	}
	return update
}

// CreateWorkItem creates an issue of the given type
func (c *Client) CreateWorkItem(ctx context.Context, workType string, patch []types.FieldPatch) (int, error) {
	update := c.translate(patch)

	fields := &jira.IssueFields{
		Project: jira.Project{Key: c.projectKey},
		Type:    jira.IssueType{Name: workType},
	}
	if summary, ok := update.fields["summary"].(string); ok {
		fields.Summary = summary
	}
	if description, ok := update.fields["description"].(string); ok {
		fields.Description = description
	}
	if components, ok := update.fields["components"].([]map[string]string); ok {
		fields.Components = []*jira.Component{{Name: components[0]["name"]}}
	}

	issue, _, err := c.client.Issue.CreateWithContext(ctx, &jira.Issue{Fields: fields})
	if err != nil {
		return 0, fmt.Errorf("failed to create issue: %w", err)
	}

	id, err := strconv.Atoi(issue.ID)
	if err != nil {
		return 0, fmt.Errorf("issue %s has non-numeric id %q: %w", issue.Key, issue.ID, err)
	}

	c.logger.Info("created jira issue",
		zap.String("jira_ticket", issue.Key),
		zap.Int("work_item_id", id),
	)

	return id, nil
}

// GetWorkItem returns the issue with its description keyed by the
// description field matching the issue type
func (c *Client) GetWorkItem(ctx context.Context, id int) (map[string]any, error) {
	issue, _, err := c.client.Issue.GetWithContext(ctx, strconv.Itoa(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	fields := map[string]any{}
	if issue.Fields == nil {
		return fields, nil
	}

	fields[types.FieldTitle] = issue.Fields.Summary
	if issue.Fields.Status != nil {
		fields[types.FieldState] = issue.Fields.Status.Name
	}
	if strings.EqualFold(issue.Fields.Type.Name, c.work.BugType) {
		fields[c.work.BugDescriptionField] = issue.Fields.Description
	} else {
		fields[c.work.StoryDescriptionField] = issue.Fields.Description
	}

	return fields, nil
}

// UpdateWorkItem applies patch to an issue
func (c *Client) UpdateWorkItem(ctx context.Context, id int, patch []types.FieldPatch) error {
	ticketID := strconv.Itoa(id)
	update := c.translate(patch)

	if len(update.fields) > 0 {
		_, err := c.client.Issue.UpdateIssueWithContext(ctx, ticketID, map[string]interface{}{
			"fields": update.fields,
		})
		if err != nil {
			return fmt.Errorf("failed to update issue: %w", err)
		}
	}

	if update.assignee != nil {
		_, err := c.client.Issue.UpdateAssigneeWithContext(ctx, ticketID, &jira.User{AccountID: *update.assignee})
		if err != nil {
			return fmt.Errorf("failed to update assignee: %w", err)
		}
	}

	if update.status != "" {
		if err := c.transition(ctx, ticketID, update.status); err != nil {
			return err
		}
	}

	return nil
}

// transition moves an issue to the named status
func (c *Client) transition(ctx context.Context, ticketID, status string) error {
	transitions, _, err := c.client.Issue.GetTransitionsWithContext(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("failed to get transitions: %w", err)
	}

	var transitionID string
	for _, transition := range transitions {
		if strings.EqualFold(transition.To.Name, status) {
			transitionID = transition.ID
			break
		}
	}

	if transitionID == "" {
		return fmt.Errorf("transition to status %s not found", status)
	}

	_, err = c.client.Issue.DoTransitionWithContext(ctx, ticketID, transitionID)
	if err != nil {
		return fmt.Errorf("failed to transition issue: %w", err)
	}

	return nil
}

// AddComment adds a comment to an issue
func (c *Client) AddComment(ctx context.Context, id int, text string) error {
	_, _, err := c.client.Issue.AddCommentWithContext(ctx, strconv.Itoa(id), &jira.Comment{
		Body: text,
	})
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	return nil
}
