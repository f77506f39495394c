package agent

import "strings"

// csvKeywords mark a question as being about tabular data analysis.
var csvKeywords = []string{
	"data", "column", "row", "field", "dataset", "table",
	"statistics", "values", "count", "average", "mean", "median",
	"sum", "maximum", "minimum", "distribution", "search", "find",
	"filter", "contains", "records", "summary", "overview",
	"describe", "analyze", "analysis", "missing", "null", "unique",
	"duplicate", "total",
}

// IsCSVRelated reports whether a question plausibly concerns the
// loaded dataset. Keyword matches and mentions of actual column names
// pass, and short follow-ups inherit relatedness from the history.
func (a *Agent) IsCSVRelated(conversationID, question string) bool {
	lower := strings.ToLower(question)

	for _, kw := range csvKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	if meta, err := a.table.Metadata(); err == nil {
		for _, col := range meta.Columns {
			if strings.Contains(lower, strings.ToLower(col)) {
				return true
			}
		}
	}

	return a.store.IsFollowUp(conversationID, question)
}
