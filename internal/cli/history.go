package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Read-only analytics endpoints served by the backend.
var historyEndpoints = map[string]string{
	"history":        "/history",
	"analysis":       "/experiments/analysis",
	"learning-curve": "/experiments/learning-curve",
	"model-metrics":  "/experiments/model-metrics",
}

var historyFlags struct {
	json  bool
	query []string
}

var historyCmd = &cobra.Command{
	Use:   "history [endpoint|path]",
	Short: "Show experiment history and analytics from the backend",
	Long: `Fetch a read-only analytics endpoint and print the result as YAML.

Endpoints: experiments, history, analysis, learning-curve, model-metrics.
Any other argument starting with /history or /experiments is fetched as is.
Without an argument, lists the experiments.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyFlags.json, "json", false, "Print JSON instead of YAML")
	historyCmd.Flags().StringArrayVarP(&historyFlags.query, "query", "Q", nil, "Query parameter key=value (repeatable)")
}

func historyPath(arg string) (string, error) {
	if p, ok := historyEndpoints[arg]; ok {
		return p, nil
	}
	if strings.HasPrefix(arg, "/history") || strings.HasPrefix(arg, "/experiments") {
		return arg, nil
	}
	names := make([]string, 0, len(historyEndpoints)+1)
	names = append(names, "experiments")
	for k := range historyEndpoints {
		names = append(names, k)
	}
	sort.Strings(names)
	return "", fmt.Errorf("unknown endpoint %q (expected one of %s)", arg, strings.Join(names, ", "))
}

func parseQuery(pairs []string) (url.Values, error) {
	q := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query %q (expected key=value)", p)
		}
		q.Add(k, v)
	}
	return q, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var v any
	if len(args) == 0 || args[0] == "experiments" {
		ids, err := a.client.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}
		if !historyFlags.json {
			if len(ids) == 0 {
				fmt.Fprintln(out, paint(styleHint, "No experiments yet."))
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", paint(styleBrand, "Experiments"), paint(styleHint, fmt.Sprintf("(%d)", len(ids))))
			for _, id := range ids {
				fmt.Fprintln(out, "  "+id)
			}
			return nil
		}
		v = ids
	} else {
		path, err := historyPath(args[0])
		if err != nil {
			return err
		}
		query, err := parseQuery(historyFlags.query)
		if err != nil {
			return err
		}
		if v, err = a.client.Get(ctx, path, query); err != nil {
			return fmt.Errorf("failed to fetch %s: %w", path, err)
		}
	}

	if historyFlags.json {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprint(out, string(data))
	return nil
}
