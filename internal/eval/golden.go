package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
	"gopkg.in/yaml.v3"
)

// GoldenQuery is one curated query with the citation it should retrieve.
type GoldenQuery struct {
	ID             string   `json:"id" yaml:"id"`
	Query          string   `json:"query_text" yaml:"query_text"`
	ExpectedSource string   `json:"expected_source" yaml:"expected_source"`
	ExpectedPages  []int    `json:"expected_pages" yaml:"expected_pages"`
	K              int      `json:"k,omitempty" yaml:"k,omitempty"`
	Collections    []string `json:"collections,omitempty" yaml:"collections,omitempty"`
}

// goldenFields has GoldenQuery's fields without its decode methods.
type goldenFields GoldenQuery

// goldenWire also accepts the short "query" key for the query text.
type goldenWire struct {
	goldenFields `yaml:",inline"`
	ShortQuery   string `json:"query" yaml:"query"`
}

func (w goldenWire) query() GoldenQuery {
	q := GoldenQuery(w.goldenFields)
	if q.Query == "" {
		q.Query = w.ShortQuery
	}
	return q
}

func (q *GoldenQuery) UnmarshalJSON(data []byte) error {
	var w goldenWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*q = w.query()
	return nil
}

func (q *GoldenQuery) UnmarshalYAML(node *yaml.Node) error {
	var w goldenWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	*q = w.query()
	return nil
}

// withDefaults fills the id from the 0-based position i and k from defaultK.
func (q GoldenQuery) withDefaults(i, defaultK int) GoldenQuery {
	if strings.TrimSpace(q.ID) == "" {
		q.ID = fmt.Sprintf("q%d", i+1)
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	return q
}

// Validate rejects queries that cannot be scored.
func (q GoldenQuery) Validate() error {
	switch {
	case strings.TrimSpace(q.Query) == "":
		return fmt.Errorf("%w: golden query %s has no query text", domain.ErrConfiguration, q.ID)
	case strings.TrimSpace(q.ExpectedSource) == "":
		return fmt.Errorf("%w: golden query %s has no expected_source", domain.ErrConfiguration, q.ID)
	case len(q.ExpectedPages) == 0:
		return fmt.Errorf("%w: golden query %s has no expected_pages", domain.ErrConfiguration, q.ID)
	case q.K <= 0:
		return fmt.Errorf("%w: golden query %s has k=%d", domain.ErrConfiguration, q.ID, q.K)
	}
	for _, p := range q.ExpectedPages {
		if p <= 0 {
			return fmt.Errorf("%w: golden query %s has page %d", domain.ErrConfiguration, q.ID, p)
		}
	}
	return nil
}

type goldenFile struct {
	Queries []GoldenQuery `json:"queries" yaml:"queries"`
}

// LoadGolden reads a golden set from a .yaml, .yml or .json file.
func LoadGolden(path string) ([]GoldenQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading golden set: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseGolden(data, "json")
	case ".yaml", ".yml":
		return ParseGolden(data, "yaml")
	}
	return nil, fmt.Errorf("%w: golden set %s must be .yaml, .yml or .json", domain.ErrConfiguration, path)
}

// ParseGolden decodes a golden set. The document is either a list of
// queries or a mapping with a "queries" list.
func ParseGolden(data []byte, format string) ([]GoldenQuery, error) {
	unmarshal := yaml.Unmarshal
	if format == "json" {
		unmarshal = json.Unmarshal
	}

	var wrapped goldenFile
	if err := unmarshal(data, &wrapped); err == nil && len(wrapped.Queries) > 0 {
		return wrapped.Queries, nil
	}

	var list []GoldenQuery
	if err := unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: parsing golden set: %v", domain.ErrConfiguration, err)
	}
	return list, nil
}
