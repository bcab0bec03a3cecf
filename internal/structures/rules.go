package structures

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Rules maps a child structure type to the parent types it may be anchored under.
type Rules map[string][]string

// Decode parses "DEPT=ORG|DIR;SERVICE=DEPT". It satisfies envconfig.Decoder.
func (r *Rules) Decode(value string) error {
	out := Rules{}
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		child, parents, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("structures: malformed rule %q", entry)
		}
		child = shared.NormalizeCode(child)
		if child == "" {
			return fmt.Errorf("structures: malformed rule %q", entry)
		}
		out[child] = append(out[child], shared.NormalizeCodes(strings.Split(parents, "|"))...)
	}
	*r = out.normalized()
	return nil
}

type rulesFile struct {
	Parents map[string][]string `yaml:"parents"`
}

// LoadRulesFile reads rules from a YAML document of the form
//
//	parents:
//	  DEPT: [ORG, DIR]
func LoadRulesFile(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("structures: read rules: %w", err)
	}
	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("structures: parse rules: %w", err)
	}
	out := Rules{}
	for child, parents := range doc.Parents {
		child = shared.NormalizeCode(child)
		out[child] = append(out[child], parents...)
	}
	return out.normalized(), nil
}

func (r Rules) normalized() Rules {
	out := make(Rules, len(r))
	for child, parents := range r {
		out[child] = shared.NormalizeCodes(parents)
	}
	return out
}

// ParentTypes returns the allowed parent types for childType.
func (r Rules) ParentTypes(childType string) []string {
	return r[shared.NormalizeCode(childType)]
}

// Allows reports whether parentType may parent childType.
func (r Rules) Allows(childType, parentType string) bool {
	parentType = shared.NormalizeCode(parentType)
	parents := r.ParentTypes(childType)
	i := sort.SearchStrings(parents, parentType)
	return i < len(parents) && parents[i] == parentType
}
