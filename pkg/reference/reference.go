// Package reference supplies the retrieved_config tier: parameter files kept
// in a directory or an object store, selected by reftype and by how well
// their meta context matches the observation being processed.
package reference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/systemstart/steppipe/pkg/api"
	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

// Reftype returns the reftype under which parameters for class are stored.
// It is built from the fully qualified class name, so classes sharing a short
// name in different namespaces never see each other's parameters.
func Reftype(class *steps.Class) string {
	return api.ReftypePrefix + strings.ToLower(class.Name)
}

// Select returns the candidate for reftype whose meta context matches the
// observation on the most keys. A candidate matches only when every key of
// its context equals the observation value. Ties keep the first candidate.
func Select(candidates []*api.ParameterFile, reftype string, observation map[string]any) (*api.ParameterFile, bool) {
	var best *api.ParameterFile
	bestScore := -1
	for _, pf := range candidates {
		if pf.Meta == nil || !strings.EqualFold(pf.Meta.Reftype, reftype) {
			continue
		}
		score, ok := matchContext(pf.Meta.Context, observation)
		if !ok {
			continue
		}
		if score > bestScore {
			best, bestScore = pf, score
		}
	}
	return best, best != nil
}

func matchContext(want, observation map[string]any) (int, bool) {
	for k, v := range want {
		got, ok := observation[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(v) {
			return 0, false
		}
	}
	return len(want), true
}

// Lister returns every candidate parameter file a provider knows.
type Lister func(ctx context.Context) ([]*api.ParameterFile, error)

// Provider retrieves parameter files through a Lister. Candidates are listed
// once and cached.
type Provider struct {
	list   Lister
	logger *slog.Logger

	once       sync.Once
	candidates []*api.ParameterFile
	listErr    error
}

// NewProvider returns a provider over list.
func NewProvider(list Lister, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{list: list, logger: logger}
}

// NewDirProvider retrieves parameter files found below root.
func NewDirProvider(root string, maxDepth int, logger *slog.Logger) *Provider {
	return NewProvider(func(context.Context) ([]*api.ParameterFile, error) {
		return Discover(root, DefaultPattern, maxDepth)
	}, logger)
}

// Retrieve returns the parameters stored for class that best match the
// observation context.
func (p *Provider) Retrieve(ctx context.Context, class *steps.Class, observation map[string]any) (params.Source, bool, error) {
	p.once.Do(func() {
		p.candidates, p.listErr = p.list(ctx)
	})
	if p.listErr != nil {
		return params.Source{}, false, fmt.Errorf("listing reference parameters: %w", p.listErr)
	}

	reftype := Reftype(class)
	pf, ok := Select(p.candidates, reftype, observation)
	if !ok {
		p.logger.Debug("No retrieved parameters", "class", class.Name, "reftype", reftype)
		return params.Source{}, false, nil
	}
	if pf.Class != "" && pf.Class != class.Name {
		return params.Source{}, false, fmt.Errorf("reference parameters %s are for class %q, not %q", pf.FilePath, pf.Class, class.Name)
	}

	p.logger.Info("Retrieved parameters", "class", class.Name, "reftype", reftype, "source", pf.FilePath)
	return pf.Source(params.RetrievedConfig), true, nil
}
