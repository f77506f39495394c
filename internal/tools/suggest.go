package tools

import "strings"

// suggestionRules map question keywords onto likely tools, checked in
// order. Used to hint the model, never to bypass it.
var suggestionRules = []struct {
	keywords []string
	tool     string
}{
	{[]string{"summary", "overview", "describe", "about"}, "get_data_summary"},
	{[]string{"statistics", "stats", "mean", "average", "median"}, "get_basic_stats"},
	{[]string{"count", "frequency", "distribution"}, "get_value_counts"},
	{[]string{"search", "find", "contains", "rows with"}, "search_data"},
	{[]string{"sort", "order by", "highest", "lowest", "top", "bottom"}, "sort_data"},
	{[]string{"filter", "where", "only", "greater than", "less than"}, "filter_data"},
	{[]string{"group", "per ", "by region", "breakdown"}, "group_and_aggregate"},
	{[]string{"measure"}, "list_measures"},
	{[]string{"dimension", "categor"}, "list_dimensions"},
	{[]string{"column", "field", "variable"}, "get_column_info"},
}

// SuggestTools returns tools likely relevant to a question, based on
// simple keyword matching.
func SuggestTools(question string) []string {
	lower := strings.ToLower(question)

	var out []string
	seen := make(map[string]bool)
	for _, rule := range suggestionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) && !seen[rule.tool] {
				out = append(out, rule.tool)
				seen[rule.tool] = true
				break
			}
		}
	}
	return out
}
