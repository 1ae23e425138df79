package chat

import (
	"regexp"
	"strconv"
	"strings"
)

// Reply is a parsed assistant message.
type Reply struct {
	Body               string   `json:"body"`
	Citations          []int    `json:"citations"`
	SuggestedFollowUps []string `json:"suggested_follow_ups"`
}

var (
	// A citation may lose its closing brackets; the digits still count.
	citationRe = regexp.MustCompile(`\[\[ID:\s*(\d+)(?:\s*\]\]?)?`)
	// A suggestion ends at "]", a newline or the end of the text.
	suggestionRe = regexp.MustCompile(`\[SUGERENCIA:([^\]\n]*)\]?`)
	blankLinesRe = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// ParseReply extracts [[ID:n]] citations and [SUGERENCIA: ...] follow-ups
// from raw and returns the text with both removed. Citations keep first-seen
// order without duplicates.
func ParseReply(raw string) Reply {
	r := Reply{Citations: []int{}, SuggestedFollowUps: []string{}}

	seen := make(map[int]bool)
	for _, m := range citationRe.FindAllStringSubmatch(raw, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		r.Citations = append(r.Citations, id)
	}
	for _, m := range suggestionRe.FindAllStringSubmatch(raw, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			r.SuggestedFollowUps = append(r.SuggestedFollowUps, s)
		}
	}

	body := citationRe.ReplaceAllString(raw, "")
	body = suggestionRe.ReplaceAllString(body, "")
	body = blankLinesRe.ReplaceAllString(body, "\n\n")
	r.Body = strings.TrimSpace(body)
	return r
}
