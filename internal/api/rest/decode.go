package rest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/clintrovert/boardbridge/pkg/types"
)

// ErrMalformedPayload is returned for deliveries missing required objects
var ErrMalformedPayload = errors.New("malformed webhook payload")

// DecodeEvent converts a webhook delivery into an event. Deliveries other
// than issues and issue_comment decode to types.Ignored without parsing
func DecodeEvent(eventType string, payload []byte) (types.Event, error) {
	if eventType != types.DeliveryIssues && eventType != types.DeliveryIssueComment {
		return types.Ignored{DeliveryType: eventType}, nil
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", eventType, err)
	}

	switch event := parsed.(type) {
	case *github.IssuesEvent:
		return decodeIssuesEvent(event)
	case *github.IssueCommentEvent:
		return decodeIssueCommentEvent(event)
	default:
		return types.Ignored{DeliveryType: eventType}, nil
	}
}

func decodeIssuesEvent(event *github.IssuesEvent) (types.Event, error) {
	action := event.GetAction()
	switch types.Action(action) {
	case types.ActionOpened, types.ActionEdited, types.ActionAssigned, types.ActionLabeled, types.ActionClosed:
	default:
		return types.Ignored{DeliveryType: types.DeliveryIssues, RawAction: action}, nil
	}

	ic, err := issueContext(event.Issue, event.Repo, event.Sender, event.Installation)
	if err != nil {
		return nil, err
	}

	switch types.Action(action) {
	case types.ActionOpened:
		return types.Opened{IssueContext: ic}, nil
	case types.ActionEdited:
		return types.Edited{IssueContext: ic}, nil
	case types.ActionAssigned:
		return types.Assigned{IssueContext: ic, Assignee: event.GetAssignee().GetLogin()}, nil
	case types.ActionLabeled:
		return types.Labeled{IssueContext: ic, Label: event.GetLabel().GetName()}, nil
	default:
		return types.Closed{IssueContext: ic}, nil
	}
}

func decodeIssueCommentEvent(event *github.IssueCommentEvent) (types.Event, error) {
	action := event.GetAction()
	if types.Action(action) != types.ActionCreated {
		return types.Ignored{DeliveryType: types.DeliveryIssueComment, RawAction: action}, nil
	}

	ic, err := issueContext(event.Issue, event.Repo, event.Sender, event.Installation)
	if err != nil {
		return nil, err
	}

	comment := event.GetComment()
	return types.CommentCreated{
		IssueContext: ic,
		Comment: types.Comment{
			Author: comment.GetUser().GetLogin(),
			Body:   comment.GetBody(),
		},
	}, nil
}

func issueContext(
	issue *github.Issue,
	repo *github.Repository,
	sender *github.User,
	installation *github.Installation,
) (types.IssueContext, error) {
	if issue == nil {
		return types.IssueContext{}, fmt.Errorf("%w: no issue", ErrMalformedPayload)
	}
	if repo == nil {
		return types.IssueContext{}, fmt.Errorf("%w: no repository", ErrMalformedPayload)
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}

	return types.IssueContext{
		Repository: types.Repository{
			Name:  repo.GetName(),
			Owner: repo.GetOwner().GetLogin(),
		},
		Issue: types.Issue{
			ID:     issue.GetID(),
			NodeID: issue.GetNodeID(),
			Number: issue.GetNumber(),
			Title:  issue.GetTitle(),
			Body:   issue.GetBody(),
			Labels: labels,
			Author: issue.GetUser().GetLogin(),
		},
		InstallationID: installation.GetID(),
		Sender: types.User{
			Login: sender.GetLogin(),
			Bot:   strings.EqualFold(sender.GetType(), "Bot"),
		},
	}, nil
}
