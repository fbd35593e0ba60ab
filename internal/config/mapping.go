package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// ErrMissingMapping is wrapped by every MappingError
var ErrMissingMapping = errors.New("missing configuration mapping")

// MissingMappingPolicy decides what happens when a repository or assignee
// has no mapping entry
type MissingMappingPolicy string

const (
	// PolicySkip leaves the field out of the patch
	PolicySkip MissingMappingPolicy = "skip"
	// PolicyReject fails the operation with a MappingError
	PolicyReject MissingMappingPolicy = "reject"
	// PolicyEmpty writes an empty value
	PolicyEmpty MissingMappingPolicy = "empty"
)

// ParsePolicy validates a policy name
func ParsePolicy(value string) (MissingMappingPolicy, error) {
	switch policy := MissingMappingPolicy(strings.ToLower(strings.TrimSpace(value))); policy {
	case PolicySkip, PolicyReject, PolicyEmpty:
		return policy, nil
	case "":
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown missing mapping policy %q", value)
	}
}

// MappingError reports a lookup with no configured entry
type MappingError struct {
	Kind string
	Key  string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no %s mapping for %q", e.Kind, e.Key)
}

func (e *MappingError) Unwrap() error {
	return ErrMissingMapping
}

// Mapping is the read-only classification and routing table
type Mapping struct {
	WorkItemLabels  []string
	RepoAreaMapping map[string]string
	AssignmentMap   map[string]string
	AutoPromote     []string
	AutoPromoteAll  bool
	ResponseLabels  []string
	Policy          MissingMappingPolicy
}

// LoadMapping reads the mapping file. A missing file is only an error when
// the path was set explicitly
func LoadMapping(path string, required bool) (*Mapping, error) {
	mapping := &Mapping{
		RepoAreaMapping: map[string]string{},
		AssignmentMap:   map[string]string{},
		Policy:          PolicySkip,
	}

	if !fileExists(path) {
		if required {
			return nil, fmt.Errorf("mapping file %s not found", path)
		}
		return mapping, nil
	}

	// repository names may contain dots
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	mapping.WorkItemLabels = v.GetStringSlice("workItemLabels")
	mapping.AutoPromote = v.GetStringSlice("autoPromote")
	mapping.ResponseLabels = v.GetStringSlice("responseLabels")
	for repo, area := range v.GetStringMapString("repoAreaMapping") {
		mapping.RepoAreaMapping[strings.ToLower(repo)] = area
	}
	for login, assignee := range v.GetStringMapString("assignmentMap") {
		mapping.AssignmentMap[strings.ToLower(login)] = assignee
	}

	return mapping, nil
}

// IsStoryLabel reports whether label classifies an issue as a user story
func (m *Mapping) IsStoryLabel(label string) bool {
	return slices.Contains(m.WorkItemLabels, label)
}

// IsPromotionLabel reports whether adding label promotes an issue
func (m *Mapping) IsPromotionLabel(label string) bool {
	return label != "" && slices.Contains(m.ResponseLabels, label)
}

// ShouldAutoPromote reports whether newly opened issues in repo are promoted
func (m *Mapping) ShouldAutoPromote(repo string) bool {
	if m.AutoPromoteAll {
		return true
	}
	return repo != "" && slices.ContainsFunc(m.AutoPromote, func(r string) bool {
		return strings.EqualFold(r, repo)
	})
}

// AreaPath looks up the area path for a repository
func (m *Mapping) AreaPath(repo string) (string, error) {
	if area, ok := m.RepoAreaMapping[strings.ToLower(repo)]; ok && area != "" {
		return area, nil
	}
	return "", &MappingError{Kind: "area path", Key: repo}
}

// Assignee looks up the work item assignee for a GitHub login
func (m *Mapping) Assignee(login string) (string, error) {
	if assignee, ok := m.AssignmentMap[strings.ToLower(login)]; ok && assignee != "" {
		return assignee, nil
	}
	return "", &MappingError{Kind: "assignee", Key: login}
}
