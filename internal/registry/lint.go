package registry

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oneirolab/somnia/internal/domain"
)

// Lint runs the release-gate checks over raw catalog bytes and returns the
// itemized problems. It is stricter than load-time validation: key ordering
// and descriptive metadata quality block a release but never block
// programmatic lookups.
func Lint(data []byte) []string {
	var problems []string

	var reg domain.Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return []string{fmt.Sprintf("catalog does not parse: %v", err)}
	}
	if err := reg.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	problems = append(problems, lintEntries(reg)...)
	problems = append(problems, lintOrdering(data)...)
	return problems
}

func lintEntries(reg domain.Registry) []string {
	var problems []string
	for _, name := range sortedKeys(reg.Corpora) {
		entry := reg.Corpora[name]
		if entry.Title == "" {
			problems = append(problems, fmt.Sprintf("corpora -> %s: title is empty", name))
		}
		if entry.Description == "" {
			problems = append(problems, fmt.Sprintf("corpora -> %s: description is empty", name))
		}
		if len(entry.Citations) == 0 {
			problems = append(problems, fmt.Sprintf("corpora -> %s: citations are empty", name))
		}
		for _, id := range sortedKeys(entry.Versions) {
			v := entry.Versions[id]
			if v.DownloadURL == "" {
				problems = append(problems,
					fmt.Sprintf("corpora -> %s -> versions -> %s: download_url is empty", name, id))
			}
			if !validHashPrefix(v.Hash) {
				problems = append(problems,
					fmt.Sprintf("corpora -> %s -> versions -> %s: hash %q must be md5:<hex> or sha256:<hex>",
						name, id, v.Hash))
			}
		}
	}
	return problems
}

func validHashPrefix(hash string) bool {
	algo, hex, found := strings.Cut(hash, ":")
	if !found || hex == "" {
		return false
	}
	switch algo {
	case "md5", "sha256":
		return true
	default:
		return false
	}
}

// lintOrdering re-parses the document as a yaml node tree: map unmarshalling
// loses declaration order, and the ordering rule is about the source text.
func lintOrdering(data []byte) []string {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Content) == 0 {
		return nil // parse errors already reported
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return []string{"catalog root must be a mapping"}
	}
	var problems []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		section := root.Content[i].Value
		if section != "collections" && section != "corpora" {
			continue
		}
		if msg := checkAlphabetical(section, root.Content[i+1]); msg != "" {
			problems = append(problems, msg)
		}
	}
	return problems
}

func checkAlphabetical(section string, node *yaml.Node) string {
	if node.Kind != yaml.MappingNode {
		return ""
	}
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	if sort.StringsAreSorted(keys) {
		return ""
	}
	expected := append([]string(nil), keys...)
	sort.Strings(expected)
	return fmt.Sprintf("%s are not in alphabetical order: have [%s], want [%s]",
		section, strings.Join(keys, ", "), strings.Join(expected, ", "))
}
