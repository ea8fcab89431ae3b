package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	cueval "github.com/dotcommander/qloop/internal/cue"
	"github.com/dotcommander/qloop/internal/types"
)

// ReportKind categorizes discovered tool reports
type ReportKind int

const (
	ReportUnknown ReportKind = iota
	ReportTest
	ReportLint
	ReportTypeCheck
	ReportBuild
	ReportSecurity
)

// String returns the human-readable name of the report kind.
func (rk ReportKind) String() string {
	switch rk {
	case ReportTest:
		return "test"
	case ReportLint:
		return "lint"
	case ReportTypeCheck:
		return "typecheck"
	case ReportBuild:
		return "build"
	case ReportSecurity:
		return "security"
	default:
		return "unknown"
	}
}

// ParseReportKind converts a string to a ReportKind.
// Returns ReportUnknown and an error for invalid input.
func ParseReportKind(s string) (ReportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "test", "tests":
		return ReportTest, nil
	case "lint":
		return ReportLint, nil
	case "typecheck", "type-check", "type_check":
		return ReportTypeCheck, nil
	case "build":
		return ReportBuild, nil
	case "security":
		return ReportSecurity, nil
	default:
		return ReportUnknown, fmt.Errorf(
			"invalid report kind %q: valid kinds are test, lint, typecheck, build, security", s)
	}
}

// contextKey maps a report kind to its evaluation-context slot.
func (rk ReportKind) contextKey() string {
	switch rk {
	case ReportTest:
		return "test_results"
	case ReportLint:
		return "lint_results"
	case ReportTypeCheck:
		return "type_check_results"
	case ReportBuild:
		return "build_results"
	case ReportSecurity:
		return "security_scan"
	default:
		return ""
	}
}

// ReportTypeEntry defines the discovery configuration for a report kind.
// This enables adding new report sources without modifying DiscoverReports().
type ReportTypeEntry struct {
	Kind     ReportKind
	Patterns []string
}

// DefaultReportTypes is the registry of report kinds and their glob
// patterns. Patterns are matched in order; more specific names first.
var DefaultReportTypes = []ReportTypeEntry{
	{Kind: ReportTest, Patterns: []string{"**/test-report.{json,yaml,yml}", "**/test-results.{json,yaml,yml}"}},
	{Kind: ReportLint, Patterns: []string{"**/lint-report.{json,yaml,yml}", "**/lint-results.{json,yaml,yml}"}},
	{Kind: ReportTypeCheck, Patterns: []string{"**/typecheck-report.{json,yaml,yml}", "**/type-check-results.{json,yaml,yml}"}},
	{Kind: ReportBuild, Patterns: []string{"**/build-report.{json,yaml,yml}", "**/build-results.{json,yaml,yml}"}},
	{Kind: ReportSecurity, Patterns: []string{"**/security-report.{json,yaml,yml}", "**/security-scan.{json,yaml,yml}"}},
}

// Report represents a discovered and parsed tool report
type Report struct {
	Path    string
	RelPath string
	Kind    ReportKind
	Data    map[string]any
	Issues  []cueval.ValidationError
}

// ReportDiscovery finds tool reports under a root directory
type ReportDiscovery struct {
	rootPath  string
	validator *cueval.Validator
}

// NewReportDiscovery creates a new ReportDiscovery instance. Schema
// validation is best-effort: if the schemas fail to load, reports are
// still discovered, just not validated.
func NewReportDiscovery(rootPath string) *ReportDiscovery {
	v := cueval.NewValidator()
	if err := v.LoadSchemas(); err != nil {
		v = nil
	}
	return &ReportDiscovery{
		rootPath:  rootPath,
		validator: v,
	}
}

// DiscoverReports finds all tool reports under the root.
// It iterates over the DefaultReportTypes registry, making it easy to
// add new report sources without modifying this method.
func (rd *ReportDiscovery) DiscoverReports() ([]Report, error) {
	return rd.DiscoverReportsWithRegistry(DefaultReportTypes)
}

// DiscoverReportsWithRegistry finds reports using a custom registry.
func (rd *ReportDiscovery) DiscoverReportsWithRegistry(registry []ReportTypeEntry) ([]Report, error) {
	var reports []Report

	for _, entry := range registry {
		discovered, err := rd.findReportsByPattern(entry.Patterns)
		if err != nil {
			return nil, fmt.Errorf("error discovering %s reports: %w", entry.Kind.String(), err)
		}
		for _, r := range discovered {
			if r.Kind == ReportUnknown {
				r.Kind = entry.Kind
			}
			reports = append(reports, r)
		}
	}

	return reports, nil
}

// findReportsByPattern finds reports matching the given glob patterns
func (rd *ReportDiscovery) findReportsByPattern(patterns []string) ([]Report, error) {
	var reports []Report

	for _, pattern := range patterns {
		// Use doublestar for glob matching with ** patterns
		matches, err := doublestar.Glob(os.DirFS(rd.rootPath), pattern)
		if err != nil {
			return nil, fmt.Errorf("error evaluating pattern %s: %w", pattern, err)
		}

		for _, match := range matches {
			r, ok := rd.processMatch(match)
			if ok {
				reports = append(reports, r)
			}
		}
	}

	return reports, nil
}

// processMatch converts a glob match into a Report, returning false if
// the match should be skipped.
func (rd *ReportDiscovery) processMatch(match string) (Report, bool) {
	fullPath := filepath.Join(rd.rootPath, match)

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		return Report{}, false
	}

	contents, err := os.ReadFile(fullPath)
	if err != nil {
		return Report{}, false
	}

	data, err := cueval.ParseDocument(contents)
	if err != nil {
		return Report{}, false
	}

	r := Report{
		Path:    fullPath,
		RelPath: match,
		Kind:    declaredKind(data),
		Data:    data,
	}

	if rd.validator != nil {
		issues, verr := rd.validator.ValidateReport(data)
		if verr == nil {
			r.Issues = issues
		}
	}

	return r, true
}

// declaredKind reads an explicit "kind" field from the report data. A
// declared kind beats the pattern-derived one.
func declaredKind(data map[string]any) ReportKind {
	s, ok := data["kind"].(string)
	if !ok {
		return ReportUnknown
	}
	kind, err := ParseReportKind(s)
	if err != nil {
		return ReportUnknown
	}
	return kind
}

// BuildContext assembles an evaluation context from discovered reports.
// When several reports share a kind, the last one wins.
func BuildContext(reports []Report) types.Context {
	ctx := make(types.Context)
	for _, r := range reports {
		key := r.Kind.contextKey()
		if key == "" {
			continue
		}
		// The kind tag is routing metadata, not signal data
		data := make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			if k == "kind" {
				continue
			}
			data[k] = v
		}
		ctx[key] = data
	}
	return ctx
}

// LoadArtifact reads and parses an artifact document from disk
func LoadArtifact(path string) (types.Artifact, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read artifact: %w", err)
	}
	data, err := cueval.ParseDocument(contents)
	if err != nil {
		return nil, fmt.Errorf("cannot parse artifact %s: %w", path, err)
	}
	return types.Artifact(data), nil
}

// LoadContext reads and parses a context document from disk
func LoadContext(path string) (types.Context, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read context: %w", err)
	}
	data, err := cueval.ParseDocument(contents)
	if err != nil {
		return nil, fmt.Errorf("cannot parse context %s: %w", path, err)
	}
	return types.Context(data), nil
}
