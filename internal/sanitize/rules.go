package sanitize

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed exclusions.yaml
var defaultRules []byte

// EntityRules lists the fields dropped from one entity kind.
type EntityRules struct {
	Drop []string `yaml:"drop"`
}

// ReviewRules adds the comment and participant filters applied to reviews.
type ReviewRules struct {
	EntityRules        `yaml:",inline"`
	CommentContainers  []string `yaml:"commentContainers"`
	IntegrationComment string   `yaml:"integrationComment"`
	Participants       string   `yaml:"participants"`
	MentionRole        string   `yaml:"mentionRole"`

	integration *regexp.Regexp
}

// UserRules adds the paths of the user fields restricted to the selection.
type UserRules struct {
	EntityRules   `yaml:",inline"`
	State         string `yaml:"state"`
	ExtraMentions string `yaml:"extraMentions"`
}

// Rules holds the exclusion lists for every entity kind.
type Rules struct {
	Organization EntityRules `yaml:"organization"`
	Repository   EntityRules `yaml:"repository"`
	Review       ReviewRules `yaml:"review"`
	User         UserRules   `yaml:"user"`
}

// DefaultRules returns the built-in exclusion lists.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("built-in exclusions are invalid: %v", err))
	}
	return r
}

// LoadRules reads exclusion lists from a YAML file. An empty path returns
// the built-in rules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Error.New("reading exclusions: %v", err)
	}
	r, err := ParseRules(data)
	if err != nil {
		return nil, Error.New("%s: %v", path, err)
	}
	return r, nil
}

// ParseRules decodes and validates exclusion lists.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing exclusions: %w", err)
	}
	if r.Review.IntegrationComment == "" {
		return nil, fmt.Errorf("review.integrationComment is required")
	}
	re, err := regexp.Compile(r.Review.IntegrationComment)
	if err != nil {
		return nil, fmt.Errorf("review.integrationComment: %w", err)
	}
	r.Review.integration = re
	return &r, nil
}
