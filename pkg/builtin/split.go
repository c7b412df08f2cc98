package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

// Split strategies.
const (
	SplitByKind     = "kind"
	SplitByResource = "resource"
	SplitByGroup    = "group"
	SplitByKindDir  = "kind-dir"
	SplitByCustom   = "custom"
)

const kustomizationFilename = "kustomization.yaml"

// Manifest represents a single parsed Kubernetes manifest.
type Manifest struct {
	APIVersion string
	Kind       string
	Name       string
	Namespace  string
	Group      string // extracted from apiVersion
	Raw        []byte
	Data       map[string]any
}

var splitClass = &steps.Class{
	Name: SplitClass,
	Help: "Splits multi-document YAML inputs into one artifact per manifest group. Output IDs are the relative file paths.",
	Spec: params.MustSpec(
		params.Param{
			Name: "by", Kind: params.KindOption, Default: SplitByKind,
			Options: []string{SplitByKind, SplitByResource, SplitByGroup, SplitByKindDir, SplitByCustom},
			Help:    "how manifests are grouped into files",
		},
		params.Param{Name: "file_name_template", Kind: params.KindString, Help: "Go template of the file path, required for by=custom"},
		params.Param{Name: "canonical_key_order", Kind: params.KindBool, Default: true, Help: "put apiVersion, kind and metadata first"},
		params.Param{Name: "kustomization", Kind: params.KindBool, Default: false, Help: "also emit a kustomization.yaml listing the files"},
	),
	New:          newSplitStep,
	NamesOutputs: true,
}

type splitStep struct {
	strategy       Strategy
	canonicalOrder bool
	kustomization  bool
}

func newSplitStep(cfg *params.Resolved) (steps.Processor, error) {
	strategy, err := getStrategy(cfg.String("by"), cfg.String("file_name_template"))
	if err != nil {
		return nil, err
	}
	return &splitStep{
		strategy:       strategy,
		canonicalOrder: cfg.Bool("canonical_key_order"),
		kustomization:  cfg.Bool("kustomization"),
	}, nil
}

func (s *splitStep) Process(_ context.Context, sc *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
	if len(in) == 0 {
		return nil, errors.New("no input data provided")
	}

	var manifests []Manifest
	for _, a := range in {
		docs, err := parseMultiDocYAML(a.Data, s.canonicalOrder)
		if err != nil {
			return nil, fmt.Errorf("parsing multi-doc YAML from %s: %w", a.ID, err)
		}
		manifests = append(manifests, docs...)
	}

	assignments, err := s.strategy.Assign(manifests)
	if err != nil {
		return nil, fmt.Errorf("assigning manifests: %w", err)
	}
	sc.Logger.Info("Split manifests", "manifests", len(manifests), "files", len(assignments))

	paths := make([]string, 0, len(assignments))
	for p := range assignments {
		if p == "" || path.IsAbs(p) || strings.HasPrefix(path.Clean(p), "..") {
			return nil, fmt.Errorf("invalid output path %q", p)
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]*steps.Artifact, 0, len(paths)+1)
	for _, p := range paths {
		docs := assignments[p]
		out = append(out, &steps.Artifact{
			ID:   p,
			Data: marshalDocs(docs),
			Meta: map[string]any{"manifests": len(docs)},
		})
	}
	if s.kustomization {
		out = append(out, &steps.Artifact{ID: kustomizationFilename, Data: kustomization(paths)})
	}
	return out, nil
}

func kustomization(paths []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("apiVersion: kustomize.config.k8s.io/v1beta1\nkind: Kustomization\nresources:\n")
	for _, p := range paths {
		buf.WriteString("  - ")
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func marshalDocs(docs []Manifest) []byte {
	var buf bytes.Buffer
	for i, m := range docs {
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(m.Raw)
		if !bytes.HasSuffix(m.Raw, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func parseMultiDocYAML(data []byte, canonicalOrder bool) ([]Manifest, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var manifests []Manifest

	for {
		var node yaml.Node
		err := decoder.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding YAML document: %w", err)
		}
		if isEmptyDoc(&node) {
			continue
		}

		if canonicalOrder {
			reorderMappingKeys(&node)
		}

		m, err := buildManifest(&node)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}

	return manifests, nil
}

func isEmptyDoc(node *yaml.Node) bool {
	if node.Kind == 0 {
		return true
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return true
		}
		c := node.Content[0]
		return c.Kind == yaml.ScalarNode && c.Tag == "!!null"
	}
	return false
}

// priorityKeys defines the canonical top-of-manifest key order.
var priorityKeys = map[string]int{
	"apiVersion": 0,
	"kind":       1,
	"metadata":   2,
}

// reorderMappingKeys moves apiVersion, kind and metadata to the front of the
// top-level mapping and keeps the other keys in their original order.
func reorderMappingKeys(node *yaml.Node) {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return
	}

	type pair struct {
		key *yaml.Node
		val *yaml.Node
	}

	pairs := make([]pair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, pair{node.Content[i], node.Content[i+1]})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		pi, oki := priorityKeys[pairs[i].key.Value]
		pj, okj := priorityKeys[pairs[j].key.Value]
		if oki && okj {
			return pi < pj
		}
		return oki
	})

	for i, p := range pairs {
		node.Content[i*2] = p.key
		node.Content[i*2+1] = p.val
	}
}

func buildManifest(node *yaml.Node) (Manifest, error) {
	var doc map[string]any
	if err := node.Decode(&doc); err != nil {
		return Manifest{}, fmt.Errorf("decoding document fields: %w", err)
	}

	m := Manifest{Data: doc}

	if v, ok := doc["apiVersion"].(string); ok {
		m.APIVersion = v
		m.Group = extractGroup(v)
	}
	if v, ok := doc["kind"].(string); ok {
		m.Kind = v
	}
	if meta, ok := doc["metadata"].(map[string]any); ok {
		if v, ok := meta["name"].(string); ok {
			m.Name = v
		}
		if v, ok := meta["namespace"].(string); ok {
			m.Namespace = v
		}
	}

	raw, err := yaml.Marshal(node)
	if err != nil {
		return Manifest{}, fmt.Errorf("re-marshaling document: %w", err)
	}
	m.Raw = raw

	return m, nil
}

// extractGroup extracts the API group from an apiVersion string.
// "apps/v1" -> "apps", "v1" -> "core"
func extractGroup(apiVersion string) string {
	group, _, found := strings.Cut(apiVersion, "/")
	if !found {
		return "core"
	}
	return group
}
