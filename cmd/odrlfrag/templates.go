package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/policy"
	"github.com/alfredjeanlab/odrlfrag/internal/ui"
)

type activityTemplate struct {
	Name     string   `json:"name" yaml:"name"`
	Types    []string `json:"types,omitempty" yaml:"types,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Rules    []string `json:"rules" yaml:"rules"`
}

type bpTemplate struct {
	Name   string          `json:"name" yaml:"name"`
	Rules  int             `json:"rules" yaml:"rules"`
	Policy *model.BPPolicy `json:"policy" yaml:"policy"`
}

type templateCatalog struct {
	Activity []activityTemplate `json:"activity" yaml:"activity"`
	Process  []bpTemplate       `json:"process" yaml:"process"`
}

func buildCatalog() templateCatalog {
	var cat templateCatalog
	for _, e := range policy.DefaultTemplates {
		at := activityTemplate{Name: e.Name, Keywords: e.Keywords}
		for _, t := range e.Types {
			at.Types = append(at.Types, string(t))
		}
		for _, r := range e.Rules {
			desc := fmt.Sprintf("%s %s %s", r.Type, r.Assignee, r.Action)
			for _, c := range r.Constraints {
				desc += " [" + c.String() + "]"
			}
			at.Rules = append(at.Rules, desc)
		}
		cat.Activity = append(cat.Activity, at)
	}
	for _, name := range policy.BPTemplateNames {
		p, ok := policy.BPTemplate(name)
		if !ok {
			continue
		}
		cat.Process = append(cat.Process, bpTemplate{Name: name, Rules: p.RuleCount(), Policy: p})
	}
	return cat
}

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Short:   "List the activity rule templates and process-level policy templates",
	GroupID: "catalog",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := buildCatalog()
		w := cmd.OutOrStdout()
		if done, err := printStructured(w, cat); done {
			return err
		}

		fmt.Fprintln(w, ui.RenderAccent("Activity templates:"))
		fmt.Fprintln(w, ui.RenderMuted("  (first match wins)"))
		for _, at := range cat.Activity {
			match := "any activity"
			switch {
			case len(at.Types) > 0:
				match = "type " + strings.Join(at.Types, ", ")
			case len(at.Keywords) > 0:
				match = "name starts with " + strings.Join(at.Keywords, ", ")
			}
			fmt.Fprintf(w, "  %s %s\n", ui.RenderCommand(at.Name), ui.RenderMuted("("+match+")"))
			for _, r := range at.Rules {
				fmt.Fprintf(w, "    %s\n", r)
			}
		}

		fmt.Fprintf(w, "\n%s\n", ui.RenderAccent("Process-level templates (--bp-policy generate:<name>):"))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, bt := range cat.Process {
			fmt.Fprintf(tw, "  %s\t%d rules\t%s\n", bt.Name, bt.Rules, bt.Policy.Profile)
		}
		return tw.Flush()
	},
}
