package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"askbot/internal/domain"
)

// Asker is the slice of the QA service the runner needs.
type Asker interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

// Result is the outcome of one case.
type Result struct {
	Name    string        `json:"name"`
	Passed  bool          `json:"passed"`
	Answer  domain.Answer `json:"answer"`
	Reasons []string      `json:"reasons,omitempty"`
	TookMs  int64         `json:"took_ms"`
}

type Summary struct {
	Suite   string   `json:"suite"`
	Results []Result `json:"results"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
}

func (s *Summary) Ok() bool { return s.Failed == 0 }

// Run executes the suite case by case. Expectation misses are recorded in
// the summary, not returned as errors; the only error is a cancelled
// context, which aborts the remaining cases.
func Run(ctx context.Context, asker Asker, suite *Suite, logger *slog.Logger) (*Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}

	summary := &Summary{Suite: suite.Name}
	for _, c := range suite.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		started := time.Now()
		ans, err := asker.Ask(ctx, c.Question)
		res := Result{Name: c.Name, Answer: ans, TookMs: time.Since(started).Milliseconds()}

		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			res.Reasons = append(res.Reasons, fmt.Sprintf("ask failed: %v", err))
		} else {
			res.Reasons = check(c, ans)
		}
		res.Passed = len(res.Reasons) == 0

		if res.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		logger.Info("eval case finished",
			"case", c.Name, "passed", res.Passed, "took_ms", res.TookMs)
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}

// check compares one answer against the case expectations. Substring
// checks are case-insensitive.
func check(c Case, ans domain.Answer) []string {
	var reasons []string
	if c.ExpectFound != nil && ans.Found != *c.ExpectFound {
		reasons = append(reasons, fmt.Sprintf("found = %v, want %v", ans.Found, *c.ExpectFound))
	}

	lower := strings.ToLower(ans.Text)
	for _, want := range c.ExpectContains {
		if !strings.Contains(lower, strings.ToLower(want)) {
			reasons = append(reasons, fmt.Sprintf("answer does not mention %q", want))
		}
	}
	for _, avoid := range c.ExpectNotContain {
		if strings.Contains(lower, strings.ToLower(avoid)) {
			reasons = append(reasons, fmt.Sprintf("answer mentions %q", avoid))
		}
	}
	return reasons
}

// Render formats the summary for the terminal, one line per case with
// failure reasons indented under it.
func (s *Summary) Render() string {
	var b strings.Builder
	if s.Suite != "" {
		fmt.Fprintf(&b, "Suite: %s\n\n", s.Suite)
	}
	for _, res := range s.Results {
		mark := "✓"
		if !res.Passed {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s (%dms)\n", mark, res.Name, res.TookMs)
		for _, reason := range res.Reasons {
			fmt.Fprintf(&b, "    %s\n", reason)
		}
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed\n", s.Passed, s.Failed)
	return b.String()
}
