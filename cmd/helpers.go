// File: cmd/helpers.go
package cmd

import (
	"fmt"

	"github.com/quantfold/fingraph/internal/graph"
	"github.com/quantfold/fingraph/internal/loader"
	"github.com/quantfold/fingraph/internal/metrics"
	"github.com/quantfold/fingraph/internal/observability"
	"github.com/quantfold/fingraph/internal/strategies"
)

// newLoader assembles a definition loader from the resolved configuration:
// the built-in strategy registry, the configured metric catalog and the
// engine tunables.
func newLoader() (*loader.Loader, error) {
	engine := appConfig.Engine()

	opts := []graph.Option{
		graph.WithMinForecastHistory(engine.MinForecastHistory),
	}
	if engine.PreciseInvalidation {
		opts = append(opts, graph.WithPreciseInvalidation())
	}

	lopts := []loader.Option{
		loader.WithStrategies(strategies.NewRegistry()),
		loader.WithGraphOptions(opts...),
		loader.WithLogger(observability.GetLogger()),
	}
	if path := appConfig.Catalog().Path; path != "" {
		catalog, err := metrics.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading metric catalog: %w", err)
		}
		lopts = append(lopts, loader.WithCatalog(catalog))
	}
	return loader.New(lopts...), nil
}

// loadGraph reads and builds the graph from a definition file.
func loadGraph(path string) (*graph.Graph, error) {
	l, err := newLoader()
	if err != nil {
		return nil, err
	}
	return l.LoadFile(path)
}
