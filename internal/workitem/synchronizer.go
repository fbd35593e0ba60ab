// Package workitem creates and updates work items from GitHub issue events
package workitem

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clintrovert/boardbridge/internal/config"
	"github.com/clintrovert/boardbridge/internal/xref"
	"github.com/clintrovert/boardbridge/pkg/types"
)

// ErrAlreadyLinked is returned when asked to create a work item for an issue
// that already carries a back-reference
var ErrAlreadyLinked = errors.New("issue is already linked to a work item")

const defaultReplayConcurrency = 8

// Synchronizer applies issue changes to the work-tracking service
type Synchronizer struct {
	tracker Tracker
	mapping *config.Mapping
	work    config.WorkConfig
	replay  config.ReplayConfig
	logger  *zap.Logger
}

// NewSynchronizer creates a new synchronizer
func NewSynchronizer(
	tracker Tracker,
	mapping *config.Mapping,
	work config.WorkConfig,
	replay config.ReplayConfig,
	logger *zap.Logger,
) *Synchronizer {
	if replay.Concurrency < 1 {
		replay.Concurrency = defaultReplayConcurrency
	}
	if mapping == nil {
		mapping = &config.Mapping{Policy: config.PolicySkip}
	}

	return &Synchronizer{
		tracker: tracker,
		mapping: mapping,
		work:    work,
		replay:  replay,
		logger:  logger,
	}
}

// Classify picks the work type from the issue labels. Issues are bugs unless
// a label is in the story label set
func (s *Synchronizer) Classify(labels []string) types.WorkType {
	for _, label := range labels {
		if s.mapping.IsStoryLabel(label) {
			return types.WorkTypeStory
		}
	}
	return types.WorkTypeBug
}

// Draft builds the create document for an issue
func (s *Synchronizer) Draft(ic types.IssueContext) (types.WorkItemDraft, error) {
	workType := s.Classify(ic.Issue.Labels)

	draft := types.WorkItemDraft{
		Title:         ic.Issue.Title,
		IterationPath: s.work.DefaultIteration,
		Description:   ic.Issue.Body,
		WorkType:      workType,
	}
	if workType == types.WorkTypeStory {
		draft.TypeName = s.work.StoryType
		draft.DescriptionField = s.work.StoryDescriptionField
	} else {
		draft.TypeName = s.work.BugType
		draft.DescriptionField = s.work.BugDescriptionField
	}

	area, err := s.mapping.AreaPath(ic.Repository.Name)
	if err != nil {
		switch s.mapping.Policy {
		case config.PolicyReject:
			return types.WorkItemDraft{}, err
		case config.PolicyEmpty:
			s.logger.Warn("writing empty area path", zap.Error(err))
		default:
			s.logger.Warn("omitting area path", zap.Error(err))
			draft.SkipAreaPath = true
		}
	}
	draft.AreaPath = area

	return draft, nil
}

// CreateWorkItem creates a work item for the issue and returns its id
func (s *Synchronizer) CreateWorkItem(ctx context.Context, ic types.IssueContext) (int, error) {
	if id, ok := xref.ExtractWorkItemRef(ic.Issue.Body); ok {
		return 0, fmt.Errorf("work item %d: %w", id, ErrAlreadyLinked)
	}

	draft, err := s.Draft(ic)
	if err != nil {
		return 0, err
	}

	id, err := s.tracker.CreateWorkItem(ctx, draft.TypeName, draft.Patch())
	if err != nil {
		return 0, fmt.Errorf("failed to create work item: %w", err)
	}

	s.logger.Info("created work item",
		zap.Int("work_item_id", id),
		zap.String("work_type", draft.WorkType.String()),
		zap.String("repository", ic.Repository.FullName()),
		zap.Int("issue_number", ic.Issue.Number),
	)

	return id, nil
}

// UpdateDescription writes description into whichever description field
// the work item already uses
func (s *Synchronizer) UpdateDescription(ctx context.Context, id int, description string) error {
	fields, err := s.tracker.GetWorkItem(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get work item %d: %w", id, err)
	}

	field := s.work.StoryDescriptionField
	if populated(fields[s.work.BugDescriptionField]) {
		field = s.work.BugDescriptionField
	}

	if err := s.tracker.UpdateWorkItem(ctx, id, []types.FieldPatch{types.AddField(field, description)}); err != nil {
		return fmt.Errorf("failed to update description of work item %d: %w", id, err)
	}

	s.logger.Info("updated work item description",
		zap.Int("work_item_id", id),
		zap.String("field", field),
	)

	return nil
}

// UpdateAssignee assigns the work item to the user mapped from login
func (s *Synchronizer) UpdateAssignee(ctx context.Context, id int, login string) error {
	assignee, err := s.mapping.Assignee(login)
	if err != nil {
		switch s.mapping.Policy {
		case config.PolicyReject:
			return err
		case config.PolicyEmpty:
			s.logger.Warn("clearing work item assignee", zap.Int("work_item_id", id), zap.Error(err))
		default:
			s.logger.Warn("skipping assignment", zap.Int("work_item_id", id), zap.Error(err))
			return nil
		}
	}

	patch := []types.FieldPatch{types.AddField(types.FieldAssignedTo, assignee)}
	if err := s.tracker.UpdateWorkItem(ctx, id, patch); err != nil {
		return fmt.Errorf("failed to assign work item %d: %w", id, err)
	}

	s.logger.Info("updated work item assignee",
		zap.Int("work_item_id", id),
		zap.String("github_login", login),
	)

	return nil
}

// AppendComment posts one comment attributed to author. Empty bodies are
// ignored
func (s *Synchronizer) AppendComment(ctx context.Context, id int, author, body string) error {
	if body == "" {
		return nil
	}

	if err := s.tracker.AddComment(ctx, id, FormatComment(author, body)); err != nil {
		return fmt.Errorf("failed to add comment to work item %d: %w", id, err)
	}
	return nil
}

// ReplayComments copies the snapshot comments onto the work item. All
// comments are attempted and every failure is reported
func (s *Synchronizer) ReplayComments(ctx context.Context, snapshot *types.IssueSnapshot, id int) error {
	if snapshot == nil || len(snapshot.Comments) == 0 {
		return nil
	}

	var err error
	if s.replay.Sequential {
		for _, comment := range snapshot.Comments {
			err = multierr.Append(err, s.AppendComment(ctx, id, comment.AuthorLogin, comment.BodyText))
		}
	} else {
		errs := make([]error, len(snapshot.Comments))
		var g errgroup.Group
		g.SetLimit(s.replay.Concurrency)
		for i, comment := range snapshot.Comments {
			g.Go(func() error {
				errs[i] = s.AppendComment(ctx, id, comment.AuthorLogin, comment.BodyText)
				return nil
			})
		}
		g.Wait()
		err = multierr.Combine(errs...)
	}

	failed := len(multierr.Errors(err))
	s.logger.Info("replayed comments",
		zap.Int("work_item_id", id),
		zap.Int("total", len(snapshot.Comments)),
		zap.Int("failed", failed),
	)

	return err
}

// CloseWorkItem moves the work item to the closed state
func (s *Synchronizer) CloseWorkItem(ctx context.Context, id int) error {
	patch := []types.FieldPatch{types.AddField(types.FieldState, s.closedState())}
	if err := s.tracker.UpdateWorkItem(ctx, id, patch); err != nil {
		return fmt.Errorf("failed to close work item %d: %w", id, err)
	}

	s.logger.Info("closed work item", zap.Int("work_item_id", id))
	return nil
}

func (s *Synchronizer) closedState() string {
	if s.work.ClosedState == "" {
		return "Closed"
	}
	return s.work.ClosedState
}

// FormatComment renders a GitHub comment for the work item discussion
func FormatComment(author, body string) string {
	return author + " said: " + body
}

func populated(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	default:
		return true
	}
}
