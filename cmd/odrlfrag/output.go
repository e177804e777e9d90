package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/odrlfrag/internal/metrics"
	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/odrl"
	"github.com/alfredjeanlab/odrlfrag/internal/pipeline"
	"github.com/alfredjeanlab/odrlfrag/internal/store"
	"github.com/alfredjeanlab/odrlfrag/internal/ui"
)

// printStructured writes v as JSON or YAML when either flag is set and
// reports whether it did.
func printStructured(w io.Writer, v any) (bool, error) {
	switch {
	case jsonOutput:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case yamlOutput:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func printAnalysis(w io.Writer, run *analysisRun) error {
	if done, err := printStructured(w, run); done {
		return err
	}
	printResultText(w, run.RunID, run.Result)
	return nil
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", ui.RenderAccent(title+":"))
}

func printResultText(w io.Writer, runID string, res *pipeline.Result) {
	p := res.Process
	fmt.Fprintf(w, "%s %s (%s)\n", ui.RenderAccent("Process"), p.ID, p.Name)
	fmt.Fprintf(w, "  %d activities, %d gateways, %d events, %d flows\n", p.Activities, p.Gateways, p.Events, p.Flows)
	line := fmt.Sprintf("  strategy %s, mode %s", res.Strategy, res.Mode)
	if res.Strategy == model.StrategyHybrid {
		line += fmt.Sprintf(", threshold %d", res.Threshold)
	}
	if res.BP != nil {
		line += fmt.Sprintf(", bp-policy %s (%d rules)", res.BP.Directive, res.BP.Rules)
	}
	fmt.Fprintln(w, line)
	if runID != "" {
		fmt.Fprintf(w, "  %s\n", ui.RenderMuted("run "+runID))
	}

	section(w, "Fragments")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tACTIVITIES\tENTRY\tEXIT")
	for _, f := range res.Fragments {
		id := f.ID
		if f.ParentID != "" {
			id += " < " + f.ParentID
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", id, strings.Join(f.Activities, ", "), strings.Join(f.EntryPoints, ", "), strings.Join(f.ExitPoints, ", "))
	}
	tw.Flush()

	if len(res.Dependencies) > 0 {
		section(w, "Dependencies")
		for _, d := range res.Dependencies {
			fmt.Fprintf(w, "  %s -> %s via %s (%s -> %s)\n", d.FromFragmentID, d.ToFragmentID, d.ViaFlowID, strings.Join(d.Upstream(), ","), d.ToActivityID)
		}
	}

	section(w, "Rules")
	for _, fr := range res.Rules {
		fmt.Fprintf(w, "  %s\n", fr.FragmentID)
		for _, r := range fr.Rules {
			fmt.Fprintf(w, "    %s\n", ruleLine(r))
		}
	}

	section(w, "Conflicts")
	if len(res.Conflicts) == 0 {
		fmt.Fprintf(w, "  %s\n", ui.RenderPass("none"))
	}
	for _, c := range res.Conflicts {
		fmt.Fprintf(w, "  %s %s\n", ui.RenderFail(string(c.Kind)), c.Explanation)
	}

	if len(res.Warnings) > 0 {
		section(w, "Warnings")
		for _, wn := range res.Warnings {
			fmt.Fprintf(w, "  %s %s\n", ui.RenderWarn(string(wn.Kind)), wn.Message)
		}
	}

	section(w, "Metrics")
	for _, l := range strings.Split(strings.TrimRight(metrics.Report(res.Metrics), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", l)
	}

	if res.Reconstruction != nil {
		section(w, "Reconstruction")
		printEvaluation(w, res.Reconstruction.Evaluation)
	}
}

// ruleLine is the rule's description with its type colored.
func ruleLine(r model.PolicyRule) string {
	t := string(r.Type)
	return strings.Replace(r.Describe(), t+"(", ui.RenderRuleType(t)+"(", 1)
}

func printEvaluation(w io.Writer, rep odrl.Report) {
	fmt.Fprintf(w, "  original %d rules, reconstructed %d rules\n", rep.Original, rep.Reconstructed)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  TYPE\tORIGINAL\tRECONSTRUCTED\tMATCHED")
	for _, ts := range rep.ByType {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\n", ts.Type, ts.Original, ts.Reconstructed, ts.Matched)
	}
	tw.Flush()
	for _, r := range rep.Lost {
		fmt.Fprintf(w, "  %s %s %s on %s\n", ui.RenderFail("lost"), r.Type, r.Rule.Action, r.Rule.Target)
	}
	for _, r := range rep.New {
		fmt.Fprintf(w, "  %s %s %s on %s\n", ui.RenderMuted("new"), r.Type, r.Rule.Action, r.Rule.Target)
	}
	if rep.Accuracy == nil {
		fmt.Fprintf(w, "  accuracy: %s\n", ui.RenderMuted("n/a (no process-level policy)"))
		return
	}
	acc := fmt.Sprintf("%.1f%%", 100**rep.Accuracy)
	if *rep.Accuracy == 1 {
		acc = ui.RenderPass(acc)
	}
	fmt.Fprintf(w, "  accuracy: %s\n", acc)
}

func printAnalysisTable(w io.Writer, list []*store.Analysis, total int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROCESS\tNAME\tSTRATEGY\tMODE\tFRAGMENTS\tRULES\tCONFLICTS\tUPDATED")
	for _, a := range list {
		name := a.ProcessName
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			a.ProcessID, name, a.Strategy, a.Mode,
			a.Fragments, a.Rules, a.Conflicts,
			a.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d analyses (%d total)\n", len(list), total)
}
