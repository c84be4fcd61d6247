package chat

import "strings"

// Route selects which collaborator answers a question.
type Route string

const (
	// RoutePlain is ordinary conversation.
	RoutePlain Route = "plain"
	// RouteKnowledge answers from an ingested namespace.
	RouteKnowledge Route = "knowledge"
	// RoutePage answers from a single fetched web page ("/s <url> <question>").
	RoutePage Route = "page"
	// RouteSearch answers from web search results ("/g <question>").
	RouteSearch Route = "search"
)

const (
	pagePrefix   = "/s "
	searchPrefix = "/g "

	// SummarizeQuestion is asked when "/s" carries a URL but no question.
	SummarizeQuestion = "please summarize it"
)

// Command is a parsed question.
type Command struct {
	Route    Route
	URL      string
	Question string
}

// ParseCommand recognises the "/s" and "/g" prefixes; anything else is returned as-is
// with RoutePlain and the caller decides between plain and knowledge routing.
// A "/s" with a URL but no question asks for a summary of the page.
func ParseCommand(question string) Command {
	switch {
	case strings.HasPrefix(question, pagePrefix):
		rest := strings.TrimSpace(question[len(pagePrefix):])
		url, q, _ := strings.Cut(rest, " ")
		if url == "" {
			break
		}
		q = strings.TrimSpace(q)
		if q == "" {
			q = SummarizeQuestion
		}
		return Command{Route: RoutePage, URL: url, Question: q}
	case strings.HasPrefix(question, searchPrefix):
		q := strings.TrimSpace(question[len(searchPrefix):])
		if q != "" {
			return Command{Route: RouteSearch, Question: q}
		}
	}
	return Command{Route: RoutePlain, Question: question}
}
