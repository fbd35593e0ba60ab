// Package dispatch routes decoded webhook events to work item operations
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clintrovert/boardbridge/internal/config"
	"github.com/clintrovert/boardbridge/internal/lock"
	"github.com/clintrovert/boardbridge/internal/xref"
	"github.com/clintrovert/boardbridge/pkg/types"
)

// Outcome summarizes what a delivery did
type Outcome string

const (
	// OutcomeIgnored means no branch handles the event
	OutcomeIgnored Outcome = "ignored"
	// OutcomeSkipped means a branch matched but its guard did not pass
	OutcomeSkipped Outcome = "skipped"
	// OutcomePromoted means a work item was created and linked
	OutcomePromoted Outcome = "promoted"
	// OutcomeUpdated means an existing work item was changed
	OutcomeUpdated Outcome = "updated"
	// OutcomeFailed means a remote call failed
	OutcomeFailed Outcome = "failed"
)

// Synchronizer applies issue changes to work items
type Synchronizer interface {
	CreateWorkItem(ctx context.Context, ic types.IssueContext) (int, error)
	UpdateDescription(ctx context.Context, id int, description string) error
	UpdateAssignee(ctx context.Context, id int, login string) error
	AppendComment(ctx context.Context, id int, author, body string) error
	CloseWorkItem(ctx context.Context, id int) error
}

// Linker reads and writes the back-reference in the GitHub issue
type Linker interface {
	LinkedWorkItem(ctx context.Context, ic types.IssueContext) (int, bool, error)
	LinkAndSync(ctx context.Context, ic types.IssueContext, workItemID int, replay bool) error
}

// Dispatcher selects the handling branch for each event
type Dispatcher struct {
	sync    Synchronizer
	linker  Linker
	locker  lock.IssueLocker
	mapping *config.Mapping
	logger  *zap.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	sync Synchronizer,
	linker Linker,
	locker lock.IssueLocker,
	mapping *config.Mapping,
	logger *zap.Logger,
) *Dispatcher {
	if locker == nil {
		locker = lock.Noop{}
	}
	if mapping == nil {
		mapping = &config.Mapping{Policy: config.PolicySkip}
	}

	return &Dispatcher{
		sync:    sync,
		linker:  linker,
		locker:  locker,
		mapping: mapping,
		logger:  logger,
	}
}

// Dispatch handles one event. Failures are logged and reported through the
// outcome, never returned
func (d *Dispatcher) Dispatch(ctx context.Context, ev types.Event) Outcome {
	logger := loggerFrom(ctx, d.logger).With(eventFields(ev)...)

	outcome, err := d.route(ctx, ev, logger)
	if err != nil {
		logger.Error("failed to handle event", zap.Error(err))
		return OutcomeFailed
	}

	logger.Info("handled event", zap.String("outcome", string(outcome)))
	return outcome
}

func (d *Dispatcher) route(ctx context.Context, ev types.Event, logger *zap.Logger) (Outcome, error) {
	switch e := ev.(type) {
	case types.Opened:
		if !d.mapping.ShouldAutoPromote(e.Repository.Name) {
			return OutcomeSkipped, nil
		}
		return d.promote(ctx, e.IssueContext, false, logger)

	case types.Labeled:
		if !d.mapping.IsPromotionLabel(e.Label) {
			return OutcomeSkipped, nil
		}
		return d.promote(ctx, e.IssueContext, true, logger)

	case types.Edited:
		if e.Sender.IsBot() {
			return OutcomeSkipped, nil
		}
		id, ok := xref.ExtractWorkItemRef(e.Issue.Body)
		if !ok {
			return OutcomeSkipped, nil
		}
		if err := d.sync.UpdateDescription(ctx, id, xref.StripTrailingLink(e.Issue.Body)); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeUpdated, nil

	case types.Assigned:
		id, ok := xref.ExtractWorkItemRef(e.Issue.Body)
		if !ok {
			return OutcomeSkipped, nil
		}
		if err := d.sync.UpdateAssignee(ctx, id, e.Assignee); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeUpdated, nil

	case types.CommentCreated:
		id, ok := xref.ExtractWorkItemRef(e.Issue.Body)
		if !ok || e.Comment.Body == "" {
			return OutcomeSkipped, nil
		}
		if err := d.sync.AppendComment(ctx, id, e.Comment.Author, e.Comment.Body); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeUpdated, nil

	case types.Closed:
		id, ok := xref.ExtractWorkItemRef(e.Issue.Body)
		if !ok {
			return OutcomeSkipped, nil
		}
		if err := d.sync.CloseWorkItem(ctx, id); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeUpdated, nil

	default:
		return OutcomeIgnored, nil
	}
}

// promote creates a work item for an unlinked issue and links it back
func (d *Dispatcher) promote(ctx context.Context, ic types.IssueContext, replay bool, logger *zap.Logger) (Outcome, error) {
	if id, ok := xref.ExtractWorkItemRef(ic.Issue.Body); ok {
		logger.Debug("issue already linked", zap.Int("work_item_id", id))
		return OutcomeSkipped, nil
	}

	key := lock.Key(ic.Repository.Owner, ic.Repository.Name, ic.Issue.Number)
	release, err := d.locker.Acquire(ctx, key)
	if errors.Is(err, lock.ErrHeld) {
		logger.Info("promotion already in progress", zap.String("lock", key))
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release lock", zap.String("lock", key), zap.Error(err))
		}
	}()

	// The payload may predate a link written by an earlier delivery
	linked, ok, err := d.linker.LinkedWorkItem(ctx, ic)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to check issue link: %w", err)
	}
	if ok {
		logger.Info("issue linked by an earlier delivery", zap.Int("work_item_id", linked))
		return OutcomeSkipped, nil
	}

	id, err := d.sync.CreateWorkItem(ctx, ic)
	if err != nil {
		return OutcomeFailed, err
	}

	if err := d.linker.LinkAndSync(ctx, ic, id, replay); err != nil {
		return OutcomeFailed, fmt.Errorf("work item %d created but not linked: %w", id, err)
	}

	return OutcomePromoted, nil
}

func eventFields(ev types.Event) []zap.Field {
	fields := []zap.Field{zap.String("action", string(ev.Action()))}

	switch e := ev.(type) {
	case types.Scoped:
		ic := e.Scope()
		fields = append(fields,
			zap.String("repository", ic.Repository.FullName()),
			zap.Int("issue_number", ic.Issue.Number),
		)
	case types.Ignored:
		fields = append(fields,
			zap.String("event", e.DeliveryType),
			zap.String("raw_action", e.RawAction),
		)
	}

	return fields
}
