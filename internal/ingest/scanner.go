// Package ingest splits plain-text standard documents into sections and
// flags the issues that drive proposal generation. It is the reference
// text extractor for the pipeline; richer extractors can feed the same
// section records through the store and bus without going through this
// package.
package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/emendhq/emend/pkg/docket"
)

// Issue types produced by the scanner.
const (
	IssueAmbiguity         = "ambiguity"
	IssueMissingDefinition = "missing_definition"
)

// headingPattern matches numbered section headings such as "2. Definitions"
// or "4.1 Profit Recognition". The number becomes the section ID and the
// remainder the title.
var headingPattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(\S.*)$`)

// maxHeadingLength filters out body lines that happen to start with a
// number; real headings in standard documents are short.
const maxHeadingLength = 100

// Scan splits a standard's plain text into sections on numbered headings
// and flags issues in each section's content. Text before the first heading
// (title block, preamble) belongs to no section, and headings with no body
// of their own (container headings like "3. Definitions" directly followed
// by "3.1 ...") are dropped.
//
// Returns an error when the text contains no headed section with content.
func Scan(standardID, text string) ([]docket.Section, error) {
	if standardID == "" {
		return nil, fmt.Errorf("standard ID cannot be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("standard text is empty")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	now := time.Now().UnixMilli()

	var sections []docket.Section
	var current *docket.Section
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if content == "" {
			return
		}
		current.Content = content
		current.Issues = FlagIssues(content)
		sections = append(sections, *current)
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := headingPattern.FindStringSubmatch(trimmed); m != nil && isHeading(trimmed, m[2]) {
			flush()
			current = &docket.Section{
				StandardID:   standardID,
				SectionID:    m[1],
				Title:        strings.TrimSpace(m[2]),
				IngestedAtMs: now,
			}
			body = nil
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	if len(sections) == 0 {
		return nil, fmt.Errorf("no numbered section headings with content found in standard text")
	}

	return sections, nil
}

// isHeading distinguishes section headings from numbered list items inside
// a body. Headings are short and their titles do not end with sentence
// punctuation; "4.1 Profit Recognition" is a heading, "1. The seller must
// disclose the cost." is a list item.
func isHeading(line, title string) bool {
	if len(line) > maxHeadingLength {
		return false
	}
	return !strings.HasSuffix(title, ".") && !strings.HasSuffix(title, ";") &&
		!strings.HasSuffix(title, ",") && !strings.HasSuffix(title, ":")
}

// ambiguityIndicators are hedging phrases that signal a requirement is open
// to interpretation. Matched case-insensitively against section content.
var ambiguityIndicators = []string{
	"may be", "could be", "might be", "is not clear", "ambiguous",
	"depending on", "in some cases", "not specified", "not defined",
	"at the discretion of", "as appropriate", "as applicable",
	"subject to interpretation",
}

// FlagIssues inspects section content and returns the issues found. At most
// one issue per type is returned; severity scales with the number of
// distinct indicators behind it.
func FlagIssues(content string) []docket.Issue {
	var issues []docket.Issue

	if hits := ambiguityHits(content); len(hits) > 0 {
		issues = append(issues, docket.Issue{
			Type:        IssueAmbiguity,
			Description: fmt.Sprintf("hedging language found: %s", strings.Join(hits, ", ")),
			Severity:    gradeSeverity(len(hits)),
		})
	}

	if terms := undefinedTerms(content); len(terms) > 0 {
		issues = append(issues, docket.Issue{
			Type:        IssueMissingDefinition,
			Description: fmt.Sprintf("capitalized terms used without definition: %s", strings.Join(terms, ", ")),
			Severity:    gradeSeverity(len(terms)),
		})
	}

	return issues
}

func ambiguityHits(content string) []string {
	lower := strings.ToLower(content)
	var hits []string
	for _, indicator := range ambiguityIndicators {
		if strings.Contains(lower, indicator) {
			hits = append(hits, indicator)
		}
	}
	return hits
}

// gradeSeverity maps a distinct-indicator count to a severity grade.
func gradeSeverity(count int) docket.Severity {
	switch {
	case count >= 3:
		return docket.SeverityHigh
	case count == 2:
		return docket.SeverityMedium
	default:
		return docket.SeverityLow
	}
}

// termPattern matches candidate defined terms: capitalized words of at
// least three letters, e.g. "Murabaha", "Takaful".
var termPattern = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)

// termStopwords are capitalized words common in standard prose that are
// never candidate defined terms.
var termStopwords = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"However": true, "Where": true, "When": true, "Unless": true,
	"Section": true, "Sections": true, "Standard": true, "Standards": true,
	"Appendix": true, "Paragraph": true,
}

// definitionMarkers count as defining a term when one directly follows it,
// e.g. "Murabaha: a sale ..." or "Murabaha means ...".
var definitionMarkers = []string{":", " means", " is defined", " refers to", " - "}

// undefinedTerms finds capitalized terms used at least twice mid-sentence
// without an accompanying definition. Sentence-initial capitals carry no
// signal and are ignored.
func undefinedTerms(content string) []string {
	counts := make(map[string]int)
	for _, loc := range termPattern.FindAllStringIndex(content, -1) {
		if sentenceInitial(content, loc[0]) {
			continue
		}
		term := content[loc[0]:loc[1]]
		if termStopwords[term] {
			continue
		}
		counts[term]++
	}

	var terms []string
	for term, n := range counts {
		if n >= 2 && !isDefined(content, term) {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)

	return terms
}

func sentenceInitial(content string, pos int) bool {
	for i := pos - 1; i >= 0; i-- {
		switch content[i] {
		case ' ', '\t':
			continue
		case '.', '!', '?', '\n':
			return true
		default:
			return false
		}
	}
	return true
}

func isDefined(content, term string) bool {
	for _, marker := range definitionMarkers {
		if strings.Contains(content, term+marker) {
			return true
		}
	}
	return false
}
