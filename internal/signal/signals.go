// Package signal models deterministic quality signals: pass/fail facts and
// counts from test, lint, type-check, build, and security tooling. Signals
// ground heuristic quality scores in verifiable evidence via a cap/bonus
// model. Hard failures cap the achievable score; positive signals earn a
// bonus. The two are mutually exclusive: a broken project cannot buy back
// points with coverage.
package signal

import (
	"fmt"

	"github.com/dotcommander/qloop/internal/types"
)

// Hard-failure caps, most severe first. Only the first matching rule applies.
const (
	capSecurityCritical = 30.0
	capMajorityFailing  = 40.0 // >50% of tests failing
	capManyFailing      = 50.0 // >20% of tests failing
	capSomeFailing      = 60.0
	capBuildFailed      = 45.0
	capSecurityHigh     = 65.0
	capNone             = 100.0
)

// maxBonus is the ceiling on the total additive bonus.
const maxBonus = 25.0

// Signals is an immutable snapshot of deterministic tool facts for one
// evaluation call. The zero value means "no signal": nothing passed,
// nothing failed, no cap and no bonus.
type Signals struct {
	TestsPassed bool
	TestsTotal  int
	TestsFailed int
	TestsOK     int

	LintPassed   bool
	LintErrors   int
	LintWarnings int

	TypeCheckPassed bool
	TypeCheckErrors int

	BuildPassed bool
	BuildErrors int

	SecurityPassed   bool
	SecurityCritical int
	SecurityHigh     int

	// Coverage is a percentage in [0,100].
	Coverage float64
}

// Adjustment records how a base score was grounded against signals.
// Reasons are enumerated for traceability, not just the numbers.
type Adjustment struct {
	BaseScore    float64  `json:"base_score"`
	FinalScore   float64  `json:"final_score"`
	Delta        float64  `json:"delta"`
	Capped       bool     `json:"capped"`
	Cap          float64  `json:"cap,omitempty"`
	Bonus        float64  `json:"bonus,omitempty"`
	HardFailures []string `json:"hard_failures,omitempty"`
	BonusReasons []string `json:"bonus_reasons,omitempty"`
}

// HasHardFailures reports whether any signal constitutes a hard failure:
// failed tests, critical security findings, or a failed build with errors.
// Zero total tests with zero failures is "no signal", not a failure.
func (s Signals) HasHardFailures() bool {
	if s.TestsFailed > 0 {
		return true
	}
	if s.SecurityCritical > 0 {
		return true
	}
	if !s.BuildPassed && s.BuildErrors > 0 {
		return true
	}
	return false
}

// HardFailureCap returns the maximum achievable score given the hard
// failures present. The decision table is priority ordered, most severe
// first; rules are not combined.
func (s Signals) HardFailureCap() float64 {
	if s.SecurityCritical > 0 {
		return capSecurityCritical
	}
	if s.TestsFailed > 0 {
		if s.TestsTotal <= 0 {
			// Failures reported without a total: assume a meaningful failure rate.
			return capManyFailing
		}
		ratio := float64(s.TestsFailed) / float64(s.TestsTotal)
		switch {
		case ratio > 0.5:
			return capMajorityFailing
		case ratio > 0.2:
			return capManyFailing
		default:
			return capSomeFailing
		}
	}
	if !s.BuildPassed && s.BuildErrors > 0 {
		return capBuildFailed
	}
	if s.SecurityHigh > 0 {
		return capSecurityHigh
	}
	return capNone
}

// Bonus returns the additive score bonus earned by positive signals,
// capped at 25. The coverage tiers are mutually exclusive; the clean-tool
// bonuses stack independently on top.
func (s Signals) Bonus() float64 {
	bonus, _ := s.bonusWithReasons()
	return bonus
}

func (s Signals) bonusWithReasons() (float64, []string) {
	var bonus float64
	var reasons []string

	switch {
	case s.Coverage >= 80:
		bonus += 10
		reasons = append(reasons, fmt.Sprintf("coverage %.0f%% >= 80%% (+10)", s.Coverage))
	case s.Coverage >= 60:
		bonus += 5
		reasons = append(reasons, fmt.Sprintf("coverage %.0f%% >= 60%% (+5)", s.Coverage))
	case s.Coverage >= 40:
		bonus += 2
		reasons = append(reasons, fmt.Sprintf("coverage %.0f%% >= 40%% (+2)", s.Coverage))
	}

	if s.LintPassed && s.LintErrors == 0 {
		bonus += 5
		reasons = append(reasons, "clean lint (+5)")
	}
	if s.TypeCheckPassed && s.TypeCheckErrors == 0 {
		bonus += 5
		reasons = append(reasons, "clean type-check (+5)")
	}
	if s.TestsPassed && s.TestsTotal > 0 && s.TestsFailed == 0 {
		bonus += 5
		reasons = append(reasons, fmt.Sprintf("all %d tests passing (+5)", s.TestsTotal))
	}
	if s.SecurityPassed && s.SecurityCritical == 0 && s.SecurityHigh == 0 {
		bonus += 5
		reasons = append(reasons, "clean security scan (+5)")
	}

	if bonus > maxBonus {
		bonus = maxBonus
	}
	return bonus, reasons
}

func (s Signals) hardFailureReasons() []string {
	var reasons []string
	if s.SecurityCritical > 0 {
		reasons = append(reasons, fmt.Sprintf("%d critical security finding(s)", s.SecurityCritical))
	}
	if s.TestsFailed > 0 {
		if s.TestsTotal > 0 {
			reasons = append(reasons, fmt.Sprintf("%d/%d tests failing", s.TestsFailed, s.TestsTotal))
		} else {
			reasons = append(reasons, fmt.Sprintf("%d test failure(s) reported", s.TestsFailed))
		}
	}
	if !s.BuildPassed && s.BuildErrors > 0 {
		reasons = append(reasons, fmt.Sprintf("build failed with %d error(s)", s.BuildErrors))
	}
	if s.SecurityHigh > 0 {
		reasons = append(reasons, fmt.Sprintf("%d high-severity security finding(s)", s.SecurityHigh))
	}
	return reasons
}

// Apply grounds a base score against the signals. With hard failures
// present the score is capped and no bonus is applied, even when one was
// earned. Without hard failures the bonus is added, bounded at 100.
func (s Signals) Apply(baseScore float64) (float64, Adjustment) {
	adj := Adjustment{BaseScore: baseScore}

	if s.HasHardFailures() {
		ceiling := s.HardFailureCap()
		adjusted := baseScore
		if adjusted > ceiling {
			adjusted = ceiling
		}
		adj.FinalScore = adjusted
		adj.Delta = adjusted - baseScore
		adj.Capped = true
		adj.Cap = ceiling
		adj.HardFailures = s.hardFailureReasons()
		return adjusted, adj
	}

	bonus, reasons := s.bonusWithReasons()
	adjusted := baseScore + bonus
	if adjusted > 100 {
		adjusted = 100
	}
	adj.FinalScore = adjusted
	adj.Delta = adjusted - baseScore
	adj.Bonus = bonus
	adj.BonusReasons = reasons
	return adjusted, adj
}

// FromContext builds Signals from a generic evaluation context.
// Recognized sub-objects: test_results, lint_results, type_check_results,
// build_results, security_scan (or security_results). Absent or malformed
// fields degrade to the zero value: no bonus, no cap.
func FromContext(ctx types.Context) Signals {
	var s Signals

	if tr := types.GetMap(ctx, "test_results"); tr != nil {
		s.TestsTotal = types.GetInt(tr, "total")
		if s.TestsTotal == 0 {
			s.TestsTotal = types.GetInt(tr, "tests_collected")
		}
		s.TestsFailed = types.GetInt(tr, "failed")
		s.TestsOK = types.GetInt(tr, "passed_count")
		if s.TestsOK == 0 && s.TestsTotal > 0 {
			s.TestsOK = s.TestsTotal - s.TestsFailed
		}
		s.TestsPassed = types.GetBool(tr, "passed", s.TestsTotal > 0 && s.TestsFailed == 0)
		if cov, ok := types.GetFloat(tr, "coverage"); ok {
			s.Coverage = normalizeCoverage(cov)
		}
	}

	if lr := types.GetMap(ctx, "lint_results"); lr != nil {
		s.LintErrors = types.GetInt(lr, "errors")
		s.LintWarnings = types.GetInt(lr, "warnings")
		s.LintPassed = types.GetBool(lr, "passed", s.LintErrors == 0)
	}

	if tc := types.GetMap(ctx, "type_check_results"); tc != nil {
		s.TypeCheckErrors = types.GetInt(tc, "errors")
		s.TypeCheckPassed = types.GetBool(tc, "passed", s.TypeCheckErrors == 0)
	}

	if br := types.GetMap(ctx, "build_results"); br != nil {
		s.BuildErrors = types.GetInt(br, "errors")
		s.BuildPassed = types.GetBool(br, "passed", types.GetBool(br, "success", s.BuildErrors == 0))
	}

	sec := types.GetMap(ctx, "security_scan")
	if sec == nil {
		sec = types.GetMap(ctx, "security_results")
	}
	if sec != nil {
		s.SecurityCritical = types.GetInt(sec, "critical")
		s.SecurityHigh = types.GetInt(sec, "high")
		s.SecurityPassed = types.GetBool(sec, "passed", s.SecurityCritical == 0 && s.SecurityHigh == 0)
	}

	return s
}

// FromEvidence builds Signals from an execution-evidence snapshot as
// produced by an external hook/observer system.
func FromEvidence(snapshot map[string]any) Signals {
	var s Signals
	if snapshot == nil {
		return s
	}

	if types.GetBool(snapshot, "tests_run", false) {
		s.TestsOK = types.GetInt(snapshot, "test_passed")
		s.TestsFailed = types.GetInt(snapshot, "test_failed")
		s.TestsTotal = s.TestsOK + s.TestsFailed
		s.TestsPassed = s.TestsTotal > 0 && s.TestsFailed == 0
	}
	if cov, ok := types.GetFloat(snapshot, "test_coverage"); ok {
		s.Coverage = normalizeCoverage(cov)
	}
	return s
}

// normalizeCoverage accepts both fractional (0-1) and percentage (0-100)
// coverage values; report formats disagree on which they emit.
func normalizeCoverage(cov float64) float64 {
	if cov > 0 && cov <= 1.0 {
		cov *= 100
	}
	if cov < 0 {
		return 0
	}
	if cov > 100 {
		return 100
	}
	return cov
}
