package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/ui"
)

type strategyInfo struct {
	Name        model.Strategy `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
}

var strategyDescriptions = map[model.Strategy]string{
	model.StrategyActivity: "one fragment per activity",
	model.StrategyGateway:  "split at decision gateways; activities between them share a fragment",
	model.StrategyHybrid:   "gateway fragments, with those larger than the threshold split per activity",
}

var strategiesCmd = &cobra.Command{
	Use:     "strategies",
	Short:   "List the fragmentation strategies",
	GroupID: "catalog",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list := make([]strategyInfo, 0, len(model.Strategies))
		for _, s := range model.Strategies {
			list = append(list, strategyInfo{Name: s, Description: strategyDescriptions[s]})
		}
		w := cmd.OutOrStdout()
		if done, err := printStructured(w, list); done {
			return err
		}
		for _, s := range list {
			name := string(s.Name)
			if name == cfg.Strategy {
				name += " (default)"
			}
			fmt.Fprintf(w, "  %-20s %s\n", ui.RenderCommand(name), s.Description)
		}
		return nil
	},
}
