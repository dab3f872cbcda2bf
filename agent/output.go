package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParseStructured extracts a JSON object from model output text. Models
// frequently wrap the object in a markdown code fence or surround it with
// prose; ParseStructured tolerates both by decoding the outermost object
// between the first '{' and the last '}'.
func ParseStructured(text string) (map[string]any, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in output: %q", truncate(text, 120))
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("decode structured output: %w", err)
	}
	return fields, nil
}

// sortedMetaPairs returns metadata as key/value pairs in key order, so
// prompts built from the same snapshot are byte-identical across runs.
func sortedMetaPairs(meta map[string]string) [][2]string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, meta[k]})
	}
	return pairs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
