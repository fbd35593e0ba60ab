// Package config loads service settings from the environment and the
// label/area/assignee mapping file
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tracker backends
const (
	TrackerAzure = "azure"
	TrackerJira  = "jira"
)

// Config holds all configuration parameters for the service
type Config struct {
	Server   ServerConfig
	Tracker  string
	Azure    AzureConfig
	Jira     JiraConfig
	Work     WorkConfig
	GitHub   GitHubConfig
	KeyVault KeyVaultConfig
	Lock     LockConfig
	Replay   ReplayConfig
	Mapping  *Mapping
}

// ServerConfig holds HTTP and logging settings
type ServerConfig struct {
	Port        string
	LogLevel    string
	Development bool
}

// AzureConfig holds the Azure DevOps connection settings
type AzureConfig struct {
	OrgURL  string
	Token   string
	Project string
}

// JiraConfig holds Jira connection settings for TRACKER=jira
type JiraConfig struct {
	URL          string
	Username     string
	Token        string
	ProjectKey   string
	ClosedStatus string
}

// WorkConfig names the work item types and fields of the target process
type WorkConfig struct {
	BugType               string
	StoryType             string
	BugDescriptionField   string
	StoryDescriptionField string
	DefaultIteration      string
	ClosedState           string
}

// GitHubConfig holds GitHub App and webhook settings
type GitHubConfig struct {
	AppID            int64
	ClientSecret     string
	PrivateKeySecret string
	PrivateKey       string
	Token            string
	WebhookSecret    string
	GraphQLURL       string
	APIURL           string
}

// KeyVaultConfig names the vault secrets are read from
type KeyVaultConfig struct {
	Name string
}

// URL returns the vault endpoint
func (k KeyVaultConfig) URL() string {
	return fmt.Sprintf("https://%s.vault.azure.net", k.Name)
}

// LockConfig configures the per-issue promotion lock
type LockConfig struct {
	RedisURL string
	TTL      time.Duration
}

// ReplayConfig controls how historical comments are copied
type ReplayConfig struct {
	Sequential  bool
	Concurrency int
}

// LoadConfig reads configuration from environment variables and the
// mapping file
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// names used by the existing deployment are bound verbatim
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.development", "DEVELOPMENT", "IsDevelopment")
	v.BindEnv("tracker", "TRACKER")
	v.BindEnv("azure.org_url", "VSInstance")
	v.BindEnv("azure.token", "ADOToken")
	v.BindEnv("azure.project", "ProjectName")
	v.BindEnv("jira.url", "JIRA_URL")
	v.BindEnv("jira.username", "JIRA_USERNAME")
	v.BindEnv("jira.token", "JIRA_TOKEN")
	v.BindEnv("jira.project_key", "JIRA_PROJECT_KEY")
	v.BindEnv("jira.closed_status", "JIRA_CLOSED_STATUS")
	v.BindEnv("work.bug_type", "BugName")
	v.BindEnv("work.story_type", "UserStoryName")
	v.BindEnv("work.bug_description_field", "BugDescriptionField")
	v.BindEnv("work.story_description_field", "UserStoryDescriptionField")
	v.BindEnv("work.default_iteration", "DefaultIteration")
	v.BindEnv("work.closed_state", "CLOSED_STATE")
	v.BindEnv("github.app_id", "github_app_id")
	v.BindEnv("github.client_secret", "GitClientSecret")
	v.BindEnv("github.private_key_secret", "GITHUB_PRIVATE_KEY_SECRET")
	v.BindEnv("github.private_key", "GITHUB_PRIVATE_KEY")
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("github.webhook_secret", "GITHUB_WEBHOOK_SECRET")
	v.BindEnv("github.graphql_url", "GITHUB_GRAPHQL_URL")
	v.BindEnv("github.api_url", "GITHUB_API_URL")
	v.BindEnv("keyvault.name", "KEY_VAULT_NAME")
	v.BindEnv("lock.redis_url", "REDIS_URL")
	v.BindEnv("lock.ttl", "LOCK_TTL")
	v.BindEnv("replay.sequential", "REPLAY_SEQUENTIAL")
	v.BindEnv("replay.concurrency", "REPLAY_CONCURRENCY")
	v.BindEnv("mapping.file", "MAPPING_FILE")
	v.BindEnv("mapping.policy", "MISSING_MAPPING_POLICY")
	v.BindEnv("mapping.auto_promote_all", "AUTO_PROMOTE_ALL")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("tracker", TrackerAzure)
	v.SetDefault("work.closed_state", "Closed")
	v.SetDefault("jira.closed_status", "Done")
	v.SetDefault("github.private_key_secret", "GIT-RSA")
	v.SetDefault("github.graphql_url", "https://api.github.com/graphql")
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("lock.ttl", "2m")
	v.SetDefault("replay.concurrency", 8)
	v.SetDefault("mapping.file", "data.json")
	v.SetDefault("mapping.policy", string(PolicySkip))

	policy, err := ParsePolicy(v.GetString("mapping.policy"))
	if err != nil {
		return nil, err
	}

	_, explicit := os.LookupEnv("MAPPING_FILE")
	mapping, err := LoadMapping(v.GetString("mapping.file"), explicit)
	if err != nil {
		return nil, err
	}
	mapping.Policy = policy
	mapping.AutoPromoteAll = v.GetBool("mapping.auto_promote_all")

	config := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			LogLevel:    v.GetString("server.log_level"),
			Development: v.GetBool("server.development"),
		},
		Tracker: strings.ToLower(v.GetString("tracker")),
		Azure: AzureConfig{
			OrgURL:  v.GetString("azure.org_url"),
			Token:   v.GetString("azure.token"),
			Project: v.GetString("azure.project"),
		},
		Jira: JiraConfig{
			URL:          v.GetString("jira.url"),
			Username:     v.GetString("jira.username"),
			Token:        v.GetString("jira.token"),
			ProjectKey:   v.GetString("jira.project_key"),
			ClosedStatus: v.GetString("jira.closed_status"),
		},
		Work: WorkConfig{
			BugType:               v.GetString("work.bug_type"),
			StoryType:             v.GetString("work.story_type"),
			BugDescriptionField:   v.GetString("work.bug_description_field"),
			StoryDescriptionField: v.GetString("work.story_description_field"),
			DefaultIteration:      v.GetString("work.default_iteration"),
			ClosedState:           v.GetString("work.closed_state"),
		},
		GitHub: GitHubConfig{
			AppID:            v.GetInt64("github.app_id"),
			ClientSecret:     v.GetString("github.client_secret"),
			PrivateKeySecret: v.GetString("github.private_key_secret"),
			PrivateKey:       v.GetString("github.private_key"),
			Token:            v.GetString("github.token"),
			WebhookSecret:    v.GetString("github.webhook_secret"),
			GraphQLURL:       v.GetString("github.graphql_url"),
			APIURL:           v.GetString("github.api_url"),
		},
		KeyVault: KeyVaultConfig{
			Name: v.GetString("keyvault.name"),
		},
		Lock: LockConfig{
			RedisURL: v.GetString("lock.redis_url"),
			TTL:      v.GetDuration("lock.ttl"),
		},
		Replay: ReplayConfig{
			Sequential:  v.GetBool("replay.sequential"),
			Concurrency: v.GetInt("replay.concurrency"),
		},
		Mapping: mapping,
	}

	// Jira closes issues through a named transition
	if config.Tracker == TrackerJira {
		config.Work.ClosedState = config.Jira.ClosedStatus
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateConfig ensures that all required configuration values are provided
func validateConfig(config *Config) error {
	var missingVars []string

	switch config.Tracker {
	case TrackerAzure:
		if config.Azure.OrgURL == "" {
			missingVars = append(missingVars, "VSInstance")
		}
		if config.Azure.Token == "" {
			missingVars = append(missingVars, "ADOToken")
		}
		if config.Azure.Project == "" {
			missingVars = append(missingVars, "ProjectName")
		}
	case TrackerJira:
		missingVars = append(missingVars, missingJiraVars(config)...)
	default:
		return fmt.Errorf("unsupported tracker %q", config.Tracker)
	}

	if config.Work.BugType == "" {
		missingVars = append(missingVars, "BugName")
	}
	if config.Work.StoryType == "" {
		missingVars = append(missingVars, "UserStoryName")
	}
	if config.Work.BugDescriptionField == "" {
		missingVars = append(missingVars, "BugDescriptionField")
	}
	if config.Work.StoryDescriptionField == "" {
		missingVars = append(missingVars, "UserStoryDescriptionField")
	}

	if config.GitHub.Token == "" {
		if config.GitHub.AppID == 0 {
			missingVars = append(missingVars, "github_app_id")
		}
		if config.GitHub.PrivateKey == "" && config.KeyVault.Name == "" {
			missingVars = append(missingVars, "KEY_VAULT_NAME")
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if config.Replay.Concurrency < 1 {
		return fmt.Errorf("REPLAY_CONCURRENCY must be at least 1, got %d", config.Replay.Concurrency)
	}

	return nil
}

// ValidateJiraConfig validates Jira-specific configuration
func ValidateJiraConfig(config *Config) error {
	if missingVars := missingJiraVars(config); len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

func missingJiraVars(config *Config) []string {
	var missingVars []string

	if config.Jira.URL == "" {
		missingVars = append(missingVars, "JIRA_URL")
	}
	if config.Jira.Username == "" {
		missingVars = append(missingVars, "JIRA_USERNAME")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JIRA_TOKEN")
	}
	if config.Jira.ProjectKey == "" {
		missingVars = append(missingVars, "JIRA_PROJECT_KEY")
	}

	return missingVars
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
