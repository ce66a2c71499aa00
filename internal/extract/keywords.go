package extract

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultKeywords are the business-name tag fragments the organization
// lookup matches against. Government form schemas are inconsistent about
// the element that carries the filer's name, so the match is by substring
// on the tag name.
var DefaultKeywords = []string{
	"事業者名",
	"事業場名",
	"事業所名",
	"会社名",
	"法人名",
	"商号",
	"名称",
}

// KeywordRules is the YAML override format for the organization keyword set.
type KeywordRules struct {
	Organization []string `yaml:"organization"`
}

// LoadKeywordRules reads a keyword rules file. An empty or missing
// organization list falls back to DefaultKeywords.
func LoadKeywordRules(path string) (*KeywordRules, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseKeywordRules(file)
}

// ParseKeywordRules parses keyword rules from an io.Reader.
func ParseKeywordRules(r io.Reader) (*KeywordRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var rules KeywordRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}

	if len(rules.Organization) == 0 {
		rules.Organization = DefaultKeywords
	}
	return &rules, nil
}
