package types

// WorkType classifies a work item as a bug or a user story
type WorkType int

const (
	WorkTypeBug WorkType = iota
	WorkTypeStory
)

func (w WorkType) String() string {
	if w == WorkTypeStory {
		return "story"
	}
	return "bug"
}

// Well-known work item field reference names
const (
	FieldTitle         = "System.Title"
	FieldAreaPath      = "System.AreaPath"
	FieldIterationPath = "System.IterationPath"
	FieldAssignedTo    = "System.AssignedTo"
	FieldState         = "System.State"
)

// FieldPatch is one JSON patch operation against a work item field
type FieldPatch struct {
	Op    string
	Field string
	Value string
}

// Path returns the JSON patch path for the field
func (p FieldPatch) Path() string {
	return "/fields/" + p.Field
}

// AddField builds an "add" patch for a field
func AddField(field, value string) FieldPatch {
	return FieldPatch{Op: "add", Field: field, Value: value}
}

// WorkItemDraft is everything needed to create a work item
type WorkItemDraft struct {
	Title            string
	AreaPath         string
	IterationPath    string
	DescriptionField string
	Description      string
	WorkType         WorkType
	TypeName         string
	SkipAreaPath     bool
}

// Patch renders the draft as the create document
func (d WorkItemDraft) Patch() []FieldPatch {
	patch := []FieldPatch{AddField(FieldTitle, d.Title)}
	if !d.SkipAreaPath {
		patch = append(patch, AddField(FieldAreaPath, d.AreaPath))
	}
	patch = append(patch,
		AddField(FieldIterationPath, d.IterationPath),
		AddField(d.DescriptionField, d.Description),
	)
	return patch
}

// SnapshotComment is one comment from an IssueSnapshot
type SnapshotComment struct {
	AuthorLogin string
	BodyText    string
}

// IssueSnapshot is the issue as returned by the GraphQL query
type IssueSnapshot struct {
	NodeID   string
	Title    string
	Body     string
	BodyText string
	Comments []SnapshotComment
}
