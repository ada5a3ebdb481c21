package cli

import (
	"github.com/spf13/viper"

	"github.com/tfgraph-io/tfgraph/pkg/engine"
	"github.com/tfgraph-io/tfgraph/pkg/envvars"
	"github.com/tfgraph-io/tfgraph/pkg/terraform"
	"github.com/tfgraph-io/tfgraph/pkg/wrapper"
)

// buildEngine wires the runner and resolvers for one configuration tree
// root. The returned runner is handed back separately so entry points can
// run the version precondition check before any work starts.
func buildEngine(root string) (*engine.Engine, *terraform.Runner, error) {
	runner, err := terraform.NewRunner(viper.GetString("binary"))
	if err != nil {
		return nil, nil, err
	}
	wrappers, err := wrapper.NewResolver(root)
	if err != nil {
		return nil, nil, err
	}
	return engine.New(runner, wrappers, envvars.NewResolver()), runner, nil
}
