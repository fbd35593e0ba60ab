package types

import "strings"

// Action is the webhook action value that selects a dispatch branch
type Action string

const (
	ActionOpened   Action = "opened"
	ActionEdited   Action = "edited"
	ActionAssigned Action = "assigned"
	ActionLabeled  Action = "labeled"
	ActionCreated  Action = "created"
	ActionClosed   Action = "closed"
	ActionOther    Action = "other"
)

// Delivery sub-types carried in the X-GitHub-Event header
const (
	DeliveryIssues       = "issues"
	DeliveryIssueComment = "issue_comment"
)

// Repository identifies the GitHub repository an event belongs to
type Repository struct {
	Name  string
	Owner string
}

// FullName returns owner/name
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Issue is the issue part of a webhook payload
type Issue struct {
	ID     int64
	NodeID string
	Number int
	Title  string
	Body   string
	Labels []string
	Author string
}

// User is a GitHub account referenced by an event
type User struct {
	Login string
	Bot   bool
}

// IsBot reports whether the account is automation. Logins containing "bot"
// count as bots so app accounts without the Bot type are caught too
func (u User) IsBot() bool {
	return u.Bot || strings.Contains(strings.ToLower(u.Login), "bot")
}

// Comment is a GitHub issue comment
type Comment struct {
	Author string
	Body   string
}

// IssueContext holds what every issue-scoped event carries
type IssueContext struct {
	Repository     Repository
	Issue          Issue
	InstallationID int64
	Sender         User
}

// Scope returns the issue context of an issue-scoped event
func (c IssueContext) Scope() IssueContext {
	return c
}

// Scoped is implemented by every event that targets an issue
type Scoped interface {
	Event
	Scope() IssueContext
}

// Event is one decoded webhook delivery. Concrete types are Opened, Edited,
// Assigned, Labeled, CommentCreated, Closed and Ignored
type Event interface {
	Action() Action
}

// Opened is an issue that was just opened
type Opened struct {
	IssueContext
}

// Edited is an issue whose title or body changed
type Edited struct {
	IssueContext
}

// Assigned is an issue that got a new assignee
type Assigned struct {
	IssueContext
	Assignee string
}

// Labeled is an issue that got a label added
type Labeled struct {
	IssueContext
	Label string
}

// CommentCreated is a new comment on an issue
type CommentCreated struct {
	IssueContext
	Comment Comment
}

// Closed is an issue that was closed
type Closed struct {
	IssueContext
}

// Ignored is any delivery that has no handling branch
type Ignored struct {
	DeliveryType string
	RawAction    string
}

func (Opened) Action() Action         { return ActionOpened }
func (Edited) Action() Action         { return ActionEdited }
func (Assigned) Action() Action       { return ActionAssigned }
func (Labeled) Action() Action        { return ActionLabeled }
func (CommentCreated) Action() Action { return ActionCreated }
func (Closed) Action() Action         { return ActionClosed }
func (Ignored) Action() Action        { return ActionOther }
