// Package botclassifier identifies known LLM bots from a User-Agent string.
package botclassifier

import (
	"regexp"
)

// Classification is the result of matching a user-agent against the bot catalog.
type Classification struct {
	BotName     string
	BotProvider string
	BotCategory string // "training" or "user_request"
}

type botInfo struct {
	provider string
	category string
}

// catalog maps bot token -> provider/category. Training bots crawl content to
// build model training sets; user_request bots fetch pages on behalf of a
// live chat answer.
var catalog = map[string]botInfo{
	"GPTBot":            {"OpenAI", "training"},
	"ChatGPT-User":      {"OpenAI", "user_request"},
	"OAI-SearchBot":     {"OpenAI", "user_request"},
	"ClaudeBot":         {"Anthropic", "training"},
	"Claude-User":       {"Anthropic", "user_request"},
	"Claude-SearchBot":  {"Anthropic", "user_request"},
	"anthropic-ai":      {"Anthropic", "training"},
	"Google-Extended":   {"Google", "training"},
	"GoogleOther":       {"Google", "training"},
	"Googlebot":         {"Google", "user_request"},
	"Bytespider":        {"ByteDance", "training"},
	"CCBot":             {"Common Crawl", "training"},
	"PerplexityBot":     {"Perplexity", "training"},
	"Perplexity-User":   {"Perplexity", "user_request"},
	"Amazonbot":         {"Amazon", "training"},
	"Applebot":          {"Apple", "user_request"},
	"Applebot-Extended": {"Apple", "training"},
	"Meta-ExternalAgent": {"Meta", "training"},
	"Meta-ExternalFetcher": {"Meta", "user_request"},
	"cohere-ai":         {"Cohere", "training"},
	"cohere-training-data-crawler": {"Cohere", "training"},
	"Diffbot":           {"Diffbot", "training"},
	"MistralAI-User":    {"Mistral", "user_request"},
	"YouBot":            {"You.com", "user_request"},
	"Timpibot":          {"Timpi", "training"},
}

// order pins "first matching bot" to a stable, deterministic sequence —
// iterating a Go map would otherwise randomize which bot wins on overlapping
// user-agent strings between runs.
var order = []string{
	"GPTBot", "ChatGPT-User", "OAI-SearchBot",
	"ClaudeBot", "Claude-User", "Claude-SearchBot", "anthropic-ai",
	"Google-Extended", "GoogleOther", "Googlebot",
	"Bytespider", "CCBot", "PerplexityBot", "Perplexity-User",
	"Amazonbot", "Applebot", "Applebot-Extended",
	"Meta-ExternalAgent", "Meta-ExternalFetcher",
	"cohere-ai", "cohere-training-data-crawler", "Diffbot", "MistralAI-User",
	"YouBot", "Timpibot",
}

var patterns map[string]*regexp.Regexp

func init() {
	patterns = make(map[string]*regexp.Regexp, len(catalog))
	for name := range catalog {
		patterns[name] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	}
}

// Classify returns the first matching bot for userAgent, or false if none of
// the catalog's patterns match. Checked at most once per record by adapters
// implementing filter_bots=true semantics.
func Classify(userAgent string) (Classification, bool) {
	if userAgent == "" {
		return Classification{}, false
	}
	for _, name := range order {
		if patterns[name].MatchString(userAgent) {
			info := catalog[name]
			return Classification{BotName: name, BotProvider: info.provider, BotCategory: info.category}, true
		}
	}
	return Classification{}, false
}

// IsTrainingBot reports whether userAgent belongs to a known training bot.
func IsTrainingBot(userAgent string) bool {
	c, ok := Classify(userAgent)
	return ok && c.BotCategory == "training"
}

// IsUserRequestBot reports whether userAgent belongs to a known user-request bot.
func IsUserRequestBot(userAgent string) bool {
	c, ok := Classify(userAgent)
	return ok && c.BotCategory == "user_request"
}
