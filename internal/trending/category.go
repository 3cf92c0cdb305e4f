package trending

import "strings"

const CategoryGeneral = "General"

type categoryRule struct {
	category string
	keywords []string
}

// Order matters: the first rule with a matching keyword wins.
var categoryRules = []categoryRule{
	{category: "World", keywords: []string{"earthquake", "war", "election", "summit", "government", "united nations"}},
	{category: "Technology", keywords: []string{"openai", "model", "ai", "google", "microsoft", "apple", "launch", "chip"}},
	{category: "Business", keywords: []string{"market", "stocks", "earnings", "inflation", "fed", "economy"}},
	{category: "Science", keywords: []string{"study", "research", "nasa", "space", "climate", "science"}},
	{category: "Health", keywords: []string{"health", "who", "disease", "outbreak", "vaccine"}},
}

// InferCategory assigns a category from a fixed keyword table. A keyword matches at the start
// of a word, so "elections" hits "election" while "said" does not hit "ai".
func InferCategory(text string) string {
	padded := " " + strings.Join(wordTokens(text), " ")
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(padded, " "+kw) {
				return rule.category
			}
		}
	}
	return CategoryGeneral
}

func wordTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
