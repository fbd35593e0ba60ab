package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"

	"github.com/clintrovert/boardbridge/pkg/types"
)

// commentPageSize bounds the comments fetched with an issue
const commentPageSize = 50

// Client wraps the GitHub GraphQL API
type Client struct {
	gql    *githubv4.Client
	logger *zap.Logger
}

// NewClient creates a new GitHub client. httpClient carries the
// credentials
func NewClient(httpClient *http.Client, graphqlURL string, logger *zap.Logger) *Client {
	return &Client{
		gql:    githubv4.NewEnterpriseClient(graphqlURL, httpClient),
		logger: logger,
	}
}

type issueQuery struct {
	Repository struct {
		Issue struct {
			ID       githubv4.ID
			Title    githubv4.String
			Body     githubv4.String
			BodyText githubv4.String
			Comments struct {
				Edges []struct {
					Node struct {
						Author struct {
							Login githubv4.String
						}
						BodyText githubv4.String
					}
				}
			} `graphql:"comments(first: $commentCount)"`
		} `graphql:"issue(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $repo)"`
}

// FetchIssue returns the issue with its first page of comments
func (c *Client) FetchIssue(ctx context.Context, owner, repo string, number int) (*types.IssueSnapshot, error) {
	var query issueQuery
	variables := map[string]interface{}{
		"owner":        githubv4.String(owner),
		"repo":         githubv4.String(repo),
		"number":       githubv4.Int(int32(number)),
		"commentCount": githubv4.Int(commentPageSize),
	}

	if err := c.gql.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query issue %s/%s#%d: %w", owner, repo, number, err)
	}

	issue := query.Repository.Issue
	snapshot := &types.IssueSnapshot{
		NodeID:   fmt.Sprint(issue.ID),
		Title:    string(issue.Title),
		Body:     string(issue.Body),
		BodyText: string(issue.BodyText),
		Comments: make([]types.SnapshotComment, 0, len(issue.Comments.Edges)),
	}
	for _, edge := range issue.Comments.Edges {
		snapshot.Comments = append(snapshot.Comments, types.SnapshotComment{
			AuthorLogin: string(edge.Node.Author.Login),
			BodyText:    string(edge.Node.BodyText),
		})
	}

	c.logger.Debug("fetched issue",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.Int("issue_number", number),
		zap.Int("comments", len(snapshot.Comments)),
	)

	return snapshot, nil
}

// UpdateIssueBody overwrites the body of the issue with the given node id
func (c *Client) UpdateIssueBody(ctx context.Context, nodeID, body string) error {
	var mutation struct {
		UpdateIssue struct {
			Issue struct {
				ID githubv4.ID
			}
		} `graphql:"updateIssue(input: $input)"`
	}

	input := githubv4.UpdateIssueInput{
		ID:   githubv4.ID(nodeID),
		Body: githubv4.NewString(githubv4.String(body)),
	}

	if err := c.gql.Mutate(ctx, &mutation, input, nil); err != nil {
		return fmt.Errorf("failed to update issue %s: %w", nodeID, err)
	}

	c.logger.Info("updated issue body", zap.String("issue_node_id", nodeID))
	return nil
}
