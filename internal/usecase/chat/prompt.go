package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/kbchat/internal/domain/vector"
)

// ContextPlaceholder is replaced by the retrieved context in knowledge prompts.
const ContextPlaceholder = "{{{context}}}"

// KnowledgeAck is the assistant turn inserted between the filled prompt and the question.
const KnowledgeAck = "Sure, please show me your question"

// RankByPosition orders matches by the offset trailing their start scope,
// keeping the retrieval order for equal offsets. The input is not modified.
func RankByPosition(matches []vector.Match) []vector.Match {
	out := make([]vector.Match, len(matches))
	copy(out, matches)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.StartOffset() < out[j].Metadata.StartOffset()
	})
	return out
}

// JoinContext concatenates match texts with newlines.
func JoinContext(matches []vector.Match) string {
	parts := make([]string, len(matches))
	for i := range matches {
		parts[i] = matches[i].Text
	}
	return strings.Join(parts, "\n")
}

// FillTemplate substitutes every placeholder occurrence with context.
func FillTemplate(template, context string) string {
	return strings.ReplaceAll(template, ContextPlaceholder, context)
}

func pagePrompt(question, context string) string {
	return "I will show you a context. Answer the QUESTION or follow the instruction using only this context.\n\n" +
		"QUESTION: " + question + "\n----\nCONTEXT:\n" + context + "\n----"
}

func searchPrompt(now time.Time, matches []vector.Match) string {
	var b strings.Builder
	b.WriteString("Provide me with the information I requested. Provide an accurate response and then stop. ")
	fmt.Fprintf(&b, "Today's date is %s.\n\nSources:\n", now.Format("2006-01-02"))
	for i := range matches {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, matches[i].Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
