// Package analysis inspects the raw message stream for data quality
// problems: duplicate ids, identity conflicts, empty texts, timestamp
// format drift. It works on items as served, before any dedup.
package analysis

import (
	"fmt"
	"sort"
	"strings"

	"askbot/internal/domain"
	"askbot/internal/source"
)

const maxExamples = 5

// Conflict is one key mapped to several values where exactly one was
// expected, e.g. a user_id that appears under two user_names.
type Conflict struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

type Report struct {
	TotalItems int `json:"total_items"`
	UniqueIDs  int `json:"unique_ids"`

	DuplicateIDs        int      `json:"duplicate_ids"`
	DuplicateIDExamples []string `json:"duplicate_id_examples,omitempty"`

	UniqueUserIDs    int        `json:"unique_user_ids"`
	UniqueUserNames  int        `json:"unique_user_names"`
	IDsWithManyNames []Conflict `json:"ids_with_many_names,omitempty"`
	NamesWithManyIDs []Conflict `json:"names_with_many_ids,omitempty"`

	EmptyTexts    int            `json:"empty_texts"`
	MissingFields map[string]int `json:"missing_fields,omitempty"`

	TimestampFormats map[string]int `json:"timestamp_formats,omitempty"`

	TextLenMin int     `json:"text_len_min"`
	TextLenAvg float64 `json:"text_len_avg"`
	TextLenMax int     `json:"text_len_max"`

	TopUsers []domain.UserCount `json:"top_users,omitempty"`

	Issues []string `json:"issues,omitempty"`
}

// Analyze walks the raw items once and builds the quality report.
func Analyze(items []source.RawItem) *Report {
	r := &Report{
		TotalItems:       len(items),
		MissingFields:    make(map[string]int),
		TimestampFormats: make(map[string]int),
	}

	seen := make(map[string]bool)
	namesByID := make(map[string]map[string]bool)
	idsByName := make(map[string]map[string]bool)
	userCounts := make(map[string]int)

	var lenSum int
	for i, it := range items {
		if it.ID == "" {
			r.MissingFields["id"]++
		} else if seen[it.ID] {
			r.DuplicateIDs++
			if len(r.DuplicateIDExamples) < maxExamples {
				r.DuplicateIDExamples = append(r.DuplicateIDExamples, it.ID)
			}
		} else {
			seen[it.ID] = true
		}

		if it.UserID == "" {
			r.MissingFields["user_id"]++
		}
		if it.UserName == "" {
			r.MissingFields["user_name"]++
		} else {
			userCounts[it.UserName]++
		}
		if it.UserID != "" && it.UserName != "" {
			addValue(namesByID, it.UserID, it.UserName)
			addValue(idsByName, it.UserName, it.UserID)
		}

		if it.Timestamp == "" {
			r.MissingFields["timestamp"]++
		} else {
			r.TimestampFormats[timestampFormat(it.Timestamp)]++
		}

		if strings.TrimSpace(it.Message) == "" {
			r.EmptyTexts++
		}
		n := len(it.Message)
		lenSum += n
		if i == 0 || n < r.TextLenMin {
			r.TextLenMin = n
		}
		if n > r.TextLenMax {
			r.TextLenMax = n
		}
	}

	r.UniqueIDs = len(seen)
	r.UniqueUserIDs = len(namesByID)
	r.UniqueUserNames = len(idsByName)
	if r.TotalItems > 0 {
		r.TextLenAvg = float64(lenSum) / float64(r.TotalItems)
	}

	r.IDsWithManyNames = conflicts(namesByID)
	r.NamesWithManyIDs = conflicts(idsByName)
	r.TopUsers = topUsers(userCounts, 10)
	r.Issues = summarize(r)
	return r
}

func addValue(m map[string]map[string]bool, key, value string) {
	if m[key] == nil {
		m[key] = make(map[string]bool)
	}
	m[key][value] = true
}

// conflicts returns the keys holding more than one value, sorted so the
// report is stable across runs.
func conflicts(m map[string]map[string]bool) []Conflict {
	var out []Conflict
	for key, values := range m {
		if len(values) < 2 {
			continue
		}
		c := Conflict{Key: key}
		for v := range values {
			c.Values = append(c.Values, v)
		}
		sort.Strings(c.Values)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func topUsers(counts map[string]int, n int) []domain.UserCount {
	out := make([]domain.UserCount, 0, len(counts))
	for name, cnt := range counts {
		out = append(out, domain.UserCount{Name: name, Count: cnt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// timestampFormat classifies a non-empty timestamp by shape. Shape is
// deliberate: the report should show what the wire carries even when a
// value does not parse.
func timestampFormat(ts string) string {
	if len(ts) >= 19 && ts[10] == 'T' {
		if strings.Contains(ts[10:], ".") {
			return "rfc3339-fractional"
		}
		return "rfc3339"
	}
	if len(ts) >= 19 && ts[10] == ' ' {
		return "space-separated"
	}
	if len(ts) == 10 && ts[4] == '-' && ts[7] == '-' {
		return "date-only"
	}
	return "unparseable"
}

func summarize(r *Report) []string {
	var issues []string
	if n := len(r.IDsWithManyNames); n > 0 {
		issues = append(issues, fmt.Sprintf("%d user IDs with multiple names", n))
	}
	if n := len(r.NamesWithManyIDs); n > 0 {
		issues = append(issues, fmt.Sprintf("%d user names with multiple IDs", n))
	}
	if r.DuplicateIDs > 0 {
		issues = append(issues, fmt.Sprintf("%d duplicate message IDs", r.DuplicateIDs))
	}
	if r.EmptyTexts > 0 {
		issues = append(issues, fmt.Sprintf("%d empty messages", r.EmptyTexts))
	}
	if n := len(r.MissingFields); n > 0 {
		issues = append(issues, fmt.Sprintf("missing values in %d field types", n))
	}
	if n := r.TimestampFormats["unparseable"]; n > 0 {
		issues = append(issues, fmt.Sprintf("%d unparseable timestamps", n))
	}
	return issues
}

// Render formats the report as sectioned text for the terminal.
func (r *Report) Render() string {
	var b strings.Builder
	div := strings.Repeat("=", 60)
	section := func(title string) {
		fmt.Fprintf(&b, "%s\n%s\n%s\n", div, title, div)
	}

	fmt.Fprintf(&b, "Total items: %d\n\n", r.TotalItems)

	section("USER ANALYSIS")
	fmt.Fprintf(&b, "Unique user IDs: %d\n", r.UniqueUserIDs)
	fmt.Fprintf(&b, "Unique user names: %d\n", r.UniqueUserNames)
	if len(r.IDsWithManyNames) > 0 {
		fmt.Fprintf(&b, "⚠ %d user IDs with multiple names:\n", len(r.IDsWithManyNames))
		for i, c := range r.IDsWithManyNames {
			if i == maxExamples {
				break
			}
			fmt.Fprintf(&b, "  %s: %s\n", c.Key, strings.Join(c.Values, ", "))
		}
	} else {
		fmt.Fprintln(&b, "✓ User IDs are consistent (one name per ID)")
	}
	if len(r.NamesWithManyIDs) > 0 {
		fmt.Fprintf(&b, "⚠ %d user names with multiple IDs:\n", len(r.NamesWithManyIDs))
		for i, c := range r.NamesWithManyIDs {
			if i == maxExamples {
				break
			}
			fmt.Fprintf(&b, "  %s: %s\n", c.Key, strings.Join(c.Values, ", "))
		}
	} else {
		fmt.Fprintln(&b, "✓ User names are consistent (one ID per name)")
	}

	fmt.Fprintln(&b)
	section("MESSAGE ANALYSIS")
	fmt.Fprintf(&b, "Unique message IDs: %d\n", r.UniqueIDs)
	if r.DuplicateIDs > 0 {
		fmt.Fprintf(&b, "⚠ %d duplicate message IDs (e.g. %s)\n",
			r.DuplicateIDs, strings.Join(r.DuplicateIDExamples, ", "))
	} else {
		fmt.Fprintln(&b, "✓ No duplicate message IDs")
	}
	if r.EmptyTexts > 0 {
		fmt.Fprintf(&b, "⚠ %d empty messages\n", r.EmptyTexts)
	} else {
		fmt.Fprintln(&b, "✓ No empty messages")
	}
	if len(r.MissingFields) > 0 {
		fmt.Fprintln(&b, "⚠ Missing required fields:")
		for _, field := range sortedKeys(r.MissingFields) {
			fmt.Fprintf(&b, "  %s: %d\n", field, r.MissingFields[field])
		}
	} else {
		fmt.Fprintln(&b, "✓ No missing required fields")
	}

	fmt.Fprintln(&b)
	section("TIMESTAMP ANALYSIS")
	if len(r.TimestampFormats) > 0 {
		fmt.Fprintln(&b, "Format distribution:")
		for _, f := range sortedKeys(r.TimestampFormats) {
			fmt.Fprintf(&b, "  %s: %d\n", f, r.TimestampFormats[f])
		}
	} else {
		fmt.Fprintln(&b, "No timestamps present")
	}

	fmt.Fprintln(&b)
	section("MESSAGE LENGTH")
	fmt.Fprintf(&b, "Min: %d  Avg: %.1f  Max: %d characters\n",
		r.TextLenMin, r.TextLenAvg, r.TextLenMax)

	fmt.Fprintln(&b)
	section("TOP USERS BY MESSAGE COUNT")
	for _, u := range r.TopUsers {
		fmt.Fprintf(&b, "  %s: %d messages\n", u.Name, u.Count)
	}

	fmt.Fprintln(&b)
	section("SUMMARY OF ISSUES")
	if len(r.Issues) > 0 {
		for _, issue := range r.Issues {
			fmt.Fprintf(&b, "⚠ %s\n", issue)
		}
	} else {
		fmt.Fprintln(&b, "✓ No major issues found in the dataset")
	}

	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
