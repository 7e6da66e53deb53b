package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"slotcheck/internal/normalizer"
)

var suggestionPhrases = compileAll(
	`(?:i\s+)?(?:am|'m)\s+available`,
	`(?:i\s+)?(?:can|could)\s+do`,
	`(?:i\s+)?(?:have|'ve)\s+time`,
	`(?:i\s+)?(?:suggest|propose|offer)`,
	`(?:here\s+are|these\s+are)\s+(?:some|the|my)\s+(?:times|slots)`,
	`(?:works|available|free)\s+for\s+me`,
	`my\s+availability`,
)

var requestPhrases = compileAll(
	`(?:are\s+you|would\s+you\s+be)\s+available`,
	`(?:can|could)\s+you\s+(?:do|make)`,
	`(?:what|which)\s+(?:time|times|day|date)\s+(?:works|is\s+good|are\s+you\s+free)`,
	`(?:let\s+me\s+know|please\s+confirm)\s+(?:your|if\s+you\s+are)\s+availability`,
	`(?:when|what\s+time)\s+(?:are\s+you|would\s+you\s+be)\s+free`,
	`(?:would|does)\s+(?:any\s+of\s+)?(?:these|this|those|that)\s+(?:work|time\s+work)`,
	`your\s+availability`,
)

const (
	monthName = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`
	dayName   = `(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)`
	ampm      = `[ap]\.?\s?m\.?`
	dash      = `\s*(?:-|–|—|to|until|till)\s*`
)

// Most specific first; the first pattern that matches a line wins.
var datePatterns = compileAll(
	`\b(?:`+dayName+`,?\s+)?`+monthName+`\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`,
	`\b\d{4}-\d{1,2}-\d{1,2}\b`,
	`\b\d{1,2}/\d{1,2}/\d{2,4}\b`,
	`\b(?:`+dayName+`,?\s+)?`+monthName+`\s+\d{1,2}(?:st|nd|rd|th)?\b`,
	`\b(?:next\s+)?`+dayName+`\b`,
	`\b(?:day\s+after\s+tomorrow|tomorrow|today)\b`,
)

var (
	// 9am-10am, 9:30 am to 11 pm
	rangeBoth = regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?\s*` + ampm + `)` + dash + `(\d{1,2}(?::\d{2})?\s*` + ampm + `)`)
	// 9-10am, 2 to 3 pm
	rangeShared = regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?)` + dash + `(\d{1,2}(?::\d{2})?)\s*(` + ampm + `)`)
	// 13:00-14:00
	range24 = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2})` + dash + `(\d{1,2}:\d{2})(\s*` + ampm + `)?`)
	// at 3pm
	single = regexp.MustCompile(`(?i)\bat\s+(\d{1,2}(?::\d{2})?\s*` + ampm + `|\d{1,2}:\d{2})`)

	contextWords = regexp.MustCompile(`(?i)\b(preferred|prefer|ideal(?:ly)?|alternative(?:ly)?|backup|fallback)\b`)
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Pattern recognises time ranges in plain text. It is the fallback when no
// structured analysis is available.
//
// Each line is scanned for a date mention and for time ranges. A range takes
// the date on its own line, or the last date seen above it.
type Pattern struct{}

func (Pattern) Name() string { return "pattern" }

func (Pattern) Extract(_ context.Context, input []byte) (*normalizer.Payload, error) {
	text := strings.TrimSpace(string(input))
	if text == "" {
		return nil, ErrNoPayload
	}

	isSuggestion := DetectSuggestion(text)
	p := &normalizer.Payload{IsSuggestion: &isSuggestion, TimeSlots: []normalizer.RawSlot{}}

	var currentDate string
	for _, line := range strings.Split(text, "\n") {
		if d := findDate(line); d != "" {
			currentDate = d
		}
		for _, r := range findRanges(line) {
			p.TimeSlots = append(p.TimeSlots, normalizer.RawSlot{
				Date:      currentDate,
				StartTime: r.start,
				EndTime:   r.end,
				Context:   contextOf(line, r.text),
			})
		}
	}

	if isSuggestion {
		p.Analysis = "Text proposes meeting times."
	} else {
		p.Analysis = "Text asks for availability."
	}
	return p, nil
}

// DetectSuggestion reports whether text offers times rather than asking for
// them. Text with no clear signal counts as a suggestion.
func DetectSuggestion(text string) bool {
	for _, re := range suggestionPhrases {
		if re.MatchString(text) {
			return true
		}
	}
	for _, re := range requestPhrases {
		if re.MatchString(text) {
			return false
		}
	}
	return true
}

func findDate(line string) string {
	for _, re := range datePatterns {
		if m := re.FindString(line); m != "" {
			return m
		}
	}
	return ""
}

type timeRange struct {
	start, end string
	text       string
	from, to   int
}

func findRanges(line string) []timeRange {
	var found []timeRange
	taken := func(from, to int) bool {
		for _, r := range found {
			if from < r.to && r.from < to {
				return true
			}
		}
		return false
	}

	for _, m := range rangeBoth.FindAllStringSubmatchIndex(line, -1) {
		found = append(found, timeRange{
			start: line[m[2]:m[3]], end: line[m[4]:m[5]],
			text: line[m[0]:m[1]], from: m[0], to: m[1],
		})
	}
	for _, m := range rangeShared.FindAllStringSubmatchIndex(line, -1) {
		if taken(m[0], m[1]) {
			continue
		}
		start, end, suffix := line[m[2]:m[3]], line[m[4]:m[5]], line[m[6]:m[7]]
		found = append(found, timeRange{
			start: sharedStart(start, end, suffix), end: end + suffix,
			text: line[m[0]:m[1]], from: m[0], to: m[1],
		})
	}
	for _, m := range range24.FindAllStringSubmatchIndex(line, -1) {
		if m[6] >= 0 || taken(m[0], m[1]) {
			continue
		}
		found = append(found, timeRange{
			start: line[m[2]:m[3]], end: line[m[4]:m[5]],
			text: line[m[0]:m[1]], from: m[0], to: m[1],
		})
	}
	for _, m := range single.FindAllStringSubmatchIndex(line, -1) {
		if taken(m[0], m[1]) {
			continue
		}
		found = append(found, timeRange{
			start: line[m[2]:m[3]],
			text:  line[m[0]:m[1]], from: m[0], to: m[1],
		})
	}

	// Keep mention order.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].from < found[j-1].from; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
	return found
}

// sharedStart applies a range's trailing am/pm to its start. "11-1pm" starts
// in the morning.
func sharedStart(start, end, suffix string) string {
	sh, eh := leadingHour(start), leadingHour(end)
	if strings.HasPrefix(strings.ToLower(suffix), "p") && sh != 12 && (eh == 12 || sh > eh) {
		return start + "am"
	}
	return start + suffix
}

func leadingHour(s string) int {
	h, _, _ := strings.Cut(s, ":")
	n, _ := strconv.Atoi(strings.TrimSpace(h))
	return n
}

// contextOf returns the qualifier next to a mention, such as "preferred".
func contextOf(line, mention string) string {
	if m := contextWords.FindString(line); m != "" {
		return strings.ToLower(m)
	}
	return strings.TrimSpace(mention)
}
