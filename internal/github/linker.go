package github

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clintrovert/boardbridge/internal/xref"
	"github.com/clintrovert/boardbridge/pkg/types"
)

// CommentReplayer copies issue comments onto a work item
type CommentReplayer interface {
	ReplayComments(ctx context.Context, snapshot *types.IssueSnapshot, workItemID int) error
}

// Linker writes work item back-references into GitHub issues
type Linker struct {
	factory  ClientFactory
	replayer CommentReplayer
	logger   *zap.Logger
}

// NewLinker creates a new linker
func NewLinker(factory ClientFactory, replayer CommentReplayer, logger *zap.Logger) *Linker {
	return &Linker{
		factory:  factory,
		replayer: replayer,
		logger:   logger,
	}
}

// LinkedWorkItem reports the work item the issue currently points at. It reads
// the live issue rather than the webhook payload, which may predate a link
// written by an earlier delivery
func (l *Linker) LinkedWorkItem(ctx context.Context, ic types.IssueContext) (int, bool, error) {
	client, err := l.factory.ForInstallation(ctx, ic.InstallationID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get github client: %w", err)
	}

	snapshot, err := client.FetchIssue(ctx, ic.Repository.Owner, ic.Repository.Name, ic.Issue.Number)
	if err != nil {
		return 0, false, err
	}

	id, ok := xref.ExtractWorkItemRef(snapshot.Body)
	return id, ok, nil
}

// LinkAndSync appends the back-reference for workItemID to the issue body
// and, when replay is set, copies the existing comments to the work item.
// The issue is fetched once and the same snapshot feeds both steps
func (l *Linker) LinkAndSync(ctx context.Context, ic types.IssueContext, workItemID int, replay bool) error {
	client, err := l.factory.ForInstallation(ctx, ic.InstallationID)
	if err != nil {
		return fmt.Errorf("failed to get github client: %w", err)
	}

	snapshot, err := client.FetchIssue(ctx, ic.Repository.Owner, ic.Repository.Name, ic.Issue.Number)
	if err != nil {
		return err
	}

	if existing, ok := xref.ExtractWorkItemRef(snapshot.Body); ok {
		l.logger.Warn("issue already carries a back-reference",
			zap.Int("existing_work_item_id", existing),
			zap.Int("work_item_id", workItemID),
		)
	} else {
		// The marker goes on the markdown body, not bodyText, so the
		// author's formatting survives the rewrite
		body := xref.ComposeLinkedBody(snapshot.Body, workItemID)
		if err := client.UpdateIssueBody(ctx, snapshot.NodeID, body); err != nil {
			return err
		}
	}

	if !replay {
		return nil
	}

	if err := l.replayer.ReplayComments(ctx, snapshot, workItemID); err != nil {
		return fmt.Errorf("failed to replay comments: %w", err)
	}

	return nil
}
