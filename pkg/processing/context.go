package processing

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadContextFile reads a YAML observation context file and returns it as a
// map.
func LoadContextFile(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}

	var ctx map[string]any
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parsing context file: %w", err)
	}

	if ctx == nil {
		ctx = make(map[string]any)
	}

	return ctx, nil
}

// MergeContext merges local context over global context. Nested maps are
// merged key by key; any other local value replaces the global one. Neither
// input is modified.
func MergeContext(global, local map[string]any) map[string]any {
	merged := make(map[string]any, len(global)+len(local))
	maps.Copy(merged, global)
	for k, v := range local {
		lm, localIsMap := v.(map[string]any)
		gm, globalIsMap := merged[k].(map[string]any)
		if localIsMap && globalIsMap {
			merged[k] = MergeContext(gm, lm)
			continue
		}
		merged[k] = v
	}
	return merged
}
