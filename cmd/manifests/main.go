package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/git-pkgs/manifests"
	_ "github.com/git-pkgs/manifests/all"
	"github.com/git-pkgs/manifests/index"
	"github.com/git-pkgs/manifests/internal/pyproject"
)

var (
	output    string
	groups    []string
	installed string
	indexURL  string
	timeout   time.Duration
	rps       float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "manifests",
		Short: "Parse package manifests and resolve them into build plans",
		Long:  "manifests parses pyproject and poetry manifests, resolves dynamic versions, checks installed packages against declared constraints, and audits dependency ranges against a package index.",
	}
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml or json")

	validateCmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Parse a manifest and report malformed fields and lint findings",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	planCmd := &cobra.Command{
		Use:   "plan <manifest>",
		Short: "Resolve a manifest into a build plan",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan,
	}

	versionCmd := &cobra.Command{
		Use:   "version <manifest>",
		Short: "Print the package version, resolving a dynamic source if needed",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersion,
	}

	checkCmd := &cobra.Command{
		Use:   "check <manifest>",
		Short: "Check installed packages against declared constraints",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	checkCmd.Flags().StringVarP(&installed, "installed", "i", "", "Freeze file with name==version lines (default stdin)")
	checkCmd.Flags().StringSliceVarP(&groups, "group", "g", nil, "Optional dependency groups to include")

	auditCmd := &cobra.Command{
		Use:   "audit <manifest>",
		Short: "Audit declared ranges against published index versions",
		Args:  cobra.ExactArgs(1),
		RunE:  runAudit,
	}
	auditCmd.Flags().StringVar(&indexURL, "index", index.DefaultURL, "Package index base URL")
	auditCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall audit timeout")
	auditCmd.Flags().Float64Var(&rps, "rps", 10, "Maximum index requests per second")
	auditCmd.Flags().StringSliceVarP(&groups, "group", "g", nil, "Optional dependency groups to include")

	rootCmd.AddCommand(validateCmd, planCmd, versionCmd, checkCmd, auditCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func emit(v any) error {
	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	d, err := manifests.Load(args[0])
	if err != nil {
		return err
	}

	warnings := pyproject.Lint(d)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	fmt.Printf("%s: %s %s (%s) OK\n", args[0], d.Name, d.Version, d.Format)
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	plan, err := manifests.File(args[0])
	if err != nil {
		return err
	}
	return emit(plan)
}

func runVersion(cmd *cobra.Command, args []string) error {
	plan, err := manifests.File(args[0])
	if err != nil {
		return err
	}
	fmt.Println(plan.Version)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	d, err := manifests.Load(args[0])
	if err != nil {
		return err
	}

	versions, err := readFreeze(installed)
	if err != nil {
		return err
	}

	violations := manifests.Check(d, versions, groups...)
	if len(violations) == 0 {
		fmt.Printf("%s: %d packages checked, all constraints satisfied\n", args[0], len(versions))
		return nil
	}

	for _, v := range violations {
		fmt.Fprintf(os.Stderr, "%v\n", v)
	}
	return fmt.Errorf("%d constraint violations", len(violations))
}

// readFreeze parses "name==version" lines, one per package, as produced by
// pip freeze. Comments and editable installs are skipped.
func readFreeze(path string) (map[string]string, error) {
	var r *os.File
	if path == "" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening freeze file: %w", err)
		}
		defer f.Close()
		r = f
	}

	versions := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-e ") {
			continue
		}
		name, ver, found := strings.Cut(line, "==")
		if !found {
			continue
		}
		versions[strings.TrimSpace(name)] = strings.TrimSpace(ver)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading freeze input: %w", err)
	}
	return versions, nil
}

// auditDeps collects the runtime dependencies plus the requested groups
// into a fresh slice, leaving the descriptor's slices untouched.
func auditDeps(d *manifests.Descriptor, groups []string) ([]manifests.Dependency, error) {
	deps := append([]manifests.Dependency(nil), d.Dependencies...)
	for _, name := range groups {
		g := d.Group(name)
		if g == nil {
			return nil, fmt.Errorf("no dependency group %q", name)
		}
		deps = append(deps, g.Dependencies...)
	}
	return deps, nil
}

type auditRow struct {
	Name             string            `json:"name" yaml:"name"`
	Spec             string            `json:"spec" yaml:"spec"`
	Published        int               `json:"published" yaml:"published"`
	Satisfying       []string          `json:"satisfying,omitempty" yaml:"satisfying,omitempty"`
	Latest           string            `json:"latest,omitempty" yaml:"latest,omitempty"`
	LatestSatisfying string            `json:"latest_satisfying,omitempty" yaml:"latest_satisfying,omitempty"`
	URLs             map[string]string `json:"urls,omitempty" yaml:"urls,omitempty"`
	Error            string            `json:"error,omitempty" yaml:"error,omitempty"`
}

func runAudit(cmd *cobra.Command, args []string) error {
	d, err := manifests.Load(args[0])
	if err != nil {
		return err
	}

	deps, err := auditDeps(d, groups)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if len(deps) == 0 {
		return fmt.Errorf("no dependencies to audit in %s", args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := index.NewBreakerClient(index.NewClient(index.WithRateLimit(rps, 1)))
	defer client.Close()
	idx := index.New(indexURL, client)

	results := idx.AuditAll(ctx, deps)

	rows := make([]auditRow, len(results))
	unsatisfiable := 0
	for i, r := range results {
		rows[i] = auditRow{
			Name:             r.Name,
			Spec:             r.Spec,
			Published:        r.Published,
			Satisfying:       r.Satisfying,
			Latest:           r.Latest,
			LatestSatisfying: r.LatestSatisfying,
			URLs:             r.URLs,
		}
		if r.Err != nil {
			rows[i].Error = r.Err.Error()
		}
		if !r.Satisfiable() {
			unsatisfiable++
		}
	}
	if err := emit(rows); err != nil {
		return err
	}
	if unsatisfiable > 0 {
		return fmt.Errorf("%d of %d ranges unsatisfiable", unsatisfiable, len(results))
	}
	return nil
}
