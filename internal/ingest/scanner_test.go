package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emendhq/emend/pkg/docket"
)

const sampleStandard = `AAOIFI Financial Accounting Standard No. 4
Murabaha and Murabaha to the Purchase Orderer

1. Scope
This standard applies to Murabaha transactions carried out by Islamic banks.
The standard does not cover Ijarah arrangements.

2. Definitions
Murabaha: a sale of goods at cost plus an agreed profit margin.

3. Accounting Treatment
3.1 Profit Recognition
Profit may be recognized proportionately, depending on the settlement period.
The treatment of Hamish Jiddiyyah is not specified in all cases.
`

func TestScan_SplitsOnNumberedHeadings(t *testing.T) {
	sections, err := Scan("FAS-4", sampleStandard)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, "1", sections[0].SectionID)
	assert.Equal(t, "Scope", sections[0].Title)
	assert.Contains(t, sections[0].Content, "applies to Murabaha transactions")

	assert.Equal(t, "2", sections[1].SectionID)
	assert.Equal(t, "Definitions", sections[1].Title)

	assert.Equal(t, "3.1", sections[2].SectionID)
	assert.Equal(t, "Profit Recognition", sections[2].Title)

	for _, sec := range sections {
		assert.Equal(t, "FAS-4", sec.StandardID)
		assert.Greater(t, sec.IngestedAtMs, int64(0))
		assert.NoError(t, sec.Validate())
	}
}

func TestScan_PreambleBelongsToNoSection(t *testing.T) {
	sections, err := Scan("FAS-4", sampleStandard)
	require.NoError(t, err)

	for _, sec := range sections {
		assert.NotContains(t, sec.Content, "Purchase Orderer")
	}
}

func TestScan_ContainerHeadingDropped(t *testing.T) {
	// "3. Accounting Treatment" has no body of its own, only the 3.1 child.
	sections, err := Scan("FAS-4", sampleStandard)
	require.NoError(t, err)

	for _, sec := range sections {
		assert.NotEqual(t, "3", sec.SectionID)
	}
}

func TestScan_FlagsIssuesPerSection(t *testing.T) {
	sections, err := Scan("FAS-4", sampleStandard)
	require.NoError(t, err)

	assert.Empty(t, sections[0].Issues)
	assert.Empty(t, sections[1].Issues)

	require.Len(t, sections[2].Issues, 1)
	issue := sections[2].Issues[0]
	assert.Equal(t, IssueAmbiguity, issue.Type)
	assert.Equal(t, docket.SeverityHigh, issue.Severity)
	assert.Contains(t, issue.Description, "may be")
	assert.Contains(t, issue.Description, "depending on")
	assert.Contains(t, issue.Description, "not specified")
}

func TestScan_NumberedListItemsStayInBody(t *testing.T) {
	text := `2. Transaction Steps
The bank follows these steps:
1. The bank purchases the asset from the supplier.
2. The bank sells the asset to the customer at cost plus margin.
`
	sections, err := Scan("FAS-4", text)
	require.NoError(t, err)
	require.Len(t, sections, 1)

	assert.Equal(t, "2", sections[0].SectionID)
	assert.Contains(t, sections[0].Content, "1. The bank purchases the asset")
	assert.Contains(t, sections[0].Content, "2. The bank sells the asset")
}

func TestScan_LongNumberedLineStaysInBody(t *testing.T) {
	long := "4 of the listed conditions apply to deferred payment sales where the institution retains constructive possession of the asset until delivery"
	require.Greater(t, len(long), maxHeadingLength)

	sections, err := Scan("FAS-4", "1. Scope\n"+long+"\n")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Contains(t, sections[0].Content, "constructive possession")
}

func TestScan_CRLFNormalized(t *testing.T) {
	sections, err := Scan("FAS-4", "1. Scope\r\nFirst line.\r\nSecond line.\r\n")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "First line.\nSecond line.", sections[0].Content)
}

func TestScan_Errors(t *testing.T) {
	tests := []struct {
		name       string
		standardID string
		text       string
		wantErr    string
	}{
		{
			name:       "empty standard ID",
			standardID: "",
			text:       "1. Scope\nBody.\n",
			wantErr:    "standard ID cannot be empty",
		},
		{
			name:       "empty text",
			standardID: "FAS-4",
			text:       "   \n\t\n",
			wantErr:    "standard text is empty",
		},
		{
			name:       "no headings",
			standardID: "FAS-4",
			text:       "Just prose without any numbered headings at all.\n",
			wantErr:    "no numbered section headings",
		},
		{
			name:       "headings without content",
			standardID: "FAS-4",
			text:       "1. Scope\n2. Definitions\n",
			wantErr:    "no numbered section headings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.standardID, tt.text)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFlagIssues_MissingDefinition(t *testing.T) {
	content := "Operators of Takaful funds shall segregate participant contributions. " +
		"Each operator of Takaful arrangements shall disclose surplus distribution."

	issues := FlagIssues(content)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueMissingDefinition, issues[0].Type)
	assert.Equal(t, docket.SeverityLow, issues[0].Severity)
	assert.Contains(t, issues[0].Description, "Takaful")
}

func TestFlagIssues_DefinedTermNotFlagged(t *testing.T) {
	content := "A Murabaha contract requires disclosure of cost. " +
		"Every Murabaha receivable shall be recorded at face value. " +
		"Murabaha: a sale of goods at cost plus an agreed profit margin."

	assert.Empty(t, FlagIssues(content))
}

func TestFlagIssues_SingleUseTermNotFlagged(t *testing.T) {
	// One mid-sentence use is not enough signal to flag a term.
	content := "The institution records Istisna costs as incurred under the percentage method."

	assert.Empty(t, FlagIssues(content))
}

func TestFlagIssues_SeverityGrading(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		severity docket.Severity
	}{
		{
			name:     "one indicator is low",
			content:  "The premium may be refunded.",
			severity: docket.SeverityLow,
		},
		{
			name:     "two indicators are medium",
			content:  "The premium may be refunded as appropriate.",
			severity: docket.SeverityMedium,
		},
		{
			name:     "three indicators are high",
			content:  "The premium may be refunded as appropriate, depending on the contract.",
			severity: docket.SeverityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := FlagIssues(tt.content)
			require.Len(t, issues, 1)
			assert.Equal(t, IssueAmbiguity, issues[0].Type)
			assert.Equal(t, tt.severity, issues[0].Severity)
		})
	}
}

func TestFlagIssues_CaseInsensitiveIndicators(t *testing.T) {
	issues := FlagIssues("Treatment is At The Discretion Of the supervisory board.")
	require.Len(t, issues, 1)
	assert.Equal(t, IssueAmbiguity, issues[0].Type)
}

func TestFlagIssues_CleanContent(t *testing.T) {
	assert.Empty(t, FlagIssues("The institution shall disclose the cost and the profit margin."))
}
