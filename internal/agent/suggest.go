package agent

import (
	"fmt"
	"strings"
)

// SuggestedQuestions proposes questions a user could ask about the
// currently loaded dataset, tailored to its column types.
func (a *Agent) SuggestedQuestions() []string {
	if !a.table.Loaded() {
		return []string{"Please load a CSV file first to get question suggestions."}
	}
	meta, err := a.table.Metadata()
	if err != nil {
		return []string{"Dataset loaded but unable to generate suggestions."}
	}

	suggestions := []string{
		"What is the summary of this dataset?",
		"How many rows and columns are in the data?",
		"What are the column names and their data types?",
	}

	if len(meta.Columns) > 0 {
		first := meta.Columns[0]
		suggestions = append(suggestions,
			fmt.Sprintf("Tell me about the '%s' column", first),
			fmt.Sprintf("What are the unique values in '%s'?", first),
		)
	}

	var firstNumeric, firstCategorical string
	for _, col := range meta.Columns {
		t := strings.ToLower(meta.Types[col])
		switch {
		case firstNumeric == "" && (t == "int" || t == "float"):
			firstNumeric = col
		case firstCategorical == "" && t == "string":
			firstCategorical = col
		}
	}

	if firstNumeric != "" {
		suggestions = append(suggestions, fmt.Sprintf("What are the statistics for '%s'?", firstNumeric))
	}
	if firstCategorical != "" {
		suggestions = append(suggestions,
			fmt.Sprintf("What are the value counts for '%s'?", firstCategorical),
			"Search for specific data in the dataset",
		)
	}

	return suggestions
}
