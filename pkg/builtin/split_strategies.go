package builtin

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Strategy assigns manifests to relative file paths.
type Strategy interface {
	Assign(manifests []Manifest) (map[string][]Manifest, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(manifests []Manifest) (map[string][]Manifest, error)

// Assign calls f.
func (f StrategyFunc) Assign(manifests []Manifest) (map[string][]Manifest, error) {
	return f(manifests)
}

func getStrategy(name, fileNameTemplate string) (Strategy, error) {
	switch name {
	case SplitByKind, "":
		return perPath(func(m Manifest) string { return strings.ToLower(m.Kind) + ".yaml" }, false), nil
	case SplitByResource:
		return perPath(resourceFile, true), nil
	case SplitByGroup:
		return perPath(func(m Manifest) string { return strings.ToLower(m.Group) + "/" + resourceFile(m) }, true), nil
	case SplitByKindDir:
		return perPath(func(m Manifest) string { return pluralize(m.Kind) + "/" + strings.ToLower(m.Name) + ".yaml" }, true), nil
	case SplitByCustom:
		return customStrategy(fileNameTemplate)
	default:
		return nil, fmt.Errorf("unknown split strategy: %s", name)
	}
}

func resourceFile(m Manifest) string {
	return strings.ToLower(m.Kind) + "-" + strings.ToLower(m.Name) + ".yaml"
}

// perPath groups manifests by the path fn assigns them. With unique set, a
// colliding manifest gets its namespace appended to the file name.
func perPath(fn func(Manifest) string, unique bool) Strategy {
	return StrategyFunc(func(manifests []Manifest) (map[string][]Manifest, error) {
		result := make(map[string][]Manifest)
		for _, m := range manifests {
			p := fn(m)
			if unique {
				p = disambiguate(result, p, m)
			}
			result[p] = append(result[p], m)
		}
		return result, nil
	})
}

var irregularPlurals = map[string]string{
	"ingress": "ingresses",
}

func pluralize(kind string) string {
	lower := strings.ToLower(kind)
	if p, ok := irregularPlurals[lower]; ok {
		return p
	}
	if strings.HasSuffix(lower, "s") {
		return lower + "es"
	}
	if strings.HasSuffix(lower, "y") {
		return lower[:len(lower)-1] + "ies"
	}
	return lower + "s"
}

// disambiguate appends the namespace to a path when it would collide with an existing entry.
func disambiguate(result map[string][]Manifest, p string, m Manifest) string {
	if _, exists := result[p]; exists && m.Namespace != "" {
		ext := path.Ext(p)
		return p[:len(p)-len(ext)] + "-" + strings.ToLower(m.Namespace) + ext
	}
	return p
}

// customStrategy renders fileNameTemplate against each manifest's fields.
func customStrategy(fileNameTemplate string) (Strategy, error) {
	if strings.TrimSpace(fileNameTemplate) == "" {
		return nil, fmt.Errorf("file_name_template is required for by=%s", SplitByCustom)
	}
	tmpl, err := template.New("filename").Funcs(sprig.TxtFuncMap()).Parse(fileNameTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing file_name_template: %w", err)
	}

	return StrategyFunc(func(manifests []Manifest) (map[string][]Manifest, error) {
		result := make(map[string][]Manifest)
		for _, m := range manifests {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, m.Data); err != nil {
				return nil, fmt.Errorf("executing file_name_template for %s/%s: %w", m.Kind, m.Name, err)
			}
			p := strings.TrimSpace(buf.String())
			result[p] = append(result[p], m)
		}
		return result, nil
	}), nil
}
