package task

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// SlotRule extracts one slot from a message. It returns "" when the message
// does not mention the slot.
type SlotRule func(text string) string

// RuleExtractor extracts slots with regular expressions. Rules are
// registered per workflow type; the ticket booking rules are built in.
//
// When no rule matches and the message is a short answer, it is assigned to
// the slot the previous turn asked for.
type RuleExtractor struct {
	rules map[string]map[string]SlotRule
}

// NewRuleExtractor creates an extractor with the built-in rules.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{
		rules: map[string]map[string]SlotRule{
			TicketBooking: ticketRules(),
		},
	}
}

// Register adds or replaces the rule for a slot of a workflow type.
func (x *RuleExtractor) Register(taskType, slot string, rule SlotRule) {
	if x.rules[taskType] == nil {
		x.rules[taskType] = map[string]SlotRule{}
	}
	x.rules[taskType][slot] = rule
}

// Extract implements SlotExtractor.
func (x *RuleExtractor) Extract(_ context.Context, req ExtractRequest) (map[string]string, error) {
	out := map[string]string{}
	rules := x.rules[req.TaskType]
	for _, slot := range req.Slots {
		if rule, ok := rules[slot]; ok {
			if v := rule(req.Text); v != "" {
				out[slot] = v
			}
		}
	}
	if len(out) > 0 || req.Pending == "" {
		return out, nil
	}

	if v := shortAnswer(req.Pending, req.Text); v != "" {
		out[req.Pending] = v
	}
	return out, nil
}

const maxShortAnswerWords = 4

var interrogative = regexp.MustCompile(`(?i)^(?:what|who|where|when|which|how|why|do|does|did|can|could|is|are|will|would)\b`)

// shortAnswer interprets a terse reply ("Mumbai", "2", "economy") as the
// value of the slot that was asked for.
func shortAnswer(slot, text string) string {
	t := strings.TrimSpace(text)
	if t == "" || strings.HasSuffix(t, "?") || interrogative.MatchString(t) {
		return ""
	}
	t = strings.Trim(t, " .!,")
	if n := len(strings.Fields(t)); n == 0 || n > maxShortAnswerWords {
		return ""
	}

	switch slot {
	case "passenger_count":
		return parseCount(t)
	case "class":
		return parseClass(t)
	case "type":
		return parseType(t)
	case "from", "to":
		t = strings.TrimSpace(leadingPreposition.ReplaceAllString(t, ""))
	}
	return t
}

var leadingPreposition = regexp.MustCompile(`(?i)^(?:from|to)\s+`)

// place captures a location lazily up to the next clause boundary.
const placeBoundary = `(?:\s+(?:on|for|at|by|next|this|tomorrow|today|tonight|economy|business|first|with|and|in|to|from|via|please)\b|\s*[,.!?;]|\s*$)`

var (
	placeAfter  = regexp.MustCompile(`(?i)^([A-Za-z][A-Za-z .'-]*?)` + placeBoundary)
	fromMarker  = regexp.MustCompile(`(?i)\bfrom\s+`)
	toMarker    = regexp.MustCompile(`(?i)\bto\s+`)
	typePattern = regexp.MustCompile(`(?i)\b(flight|plane|train|bus)(?:es|s)?\b`)
	classWord   = regexp.MustCompile(`(?i)\b(economy|business|first\s+class|premium\s+economy)\b`)
	countWord   = regexp.MustCompile(`(?i)\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+(?:passengers?|people|persons?|tickets?|adults?|travell?ers?|seats?)\b`)
	soloWord    = regexp.MustCompile(`(?i)\b(?:just me|only me|myself|alone|solo)\b`)
)

// notPlaces are words that follow "to" without naming a destination.
var notPlaces = map[string]bool{
	"book": true, "reserve": true, "buy": true, "go": true, "travel": true,
	"fly": true, "get": true, "make": true, "have": true, "be": true,
	"know": true, "change": true, "cancel": true, "the": true,
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(day after tomorrow|today|tomorrow|tonight)\b`),
	regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2})\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2}[/.-]\d{1,2}(?:[/.-]\d{2,4})?)\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*(?:\s+\d{4})?)\b`),
	regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)\b`),
	regexp.MustCompile(`(?i)\b((?:next|this|coming)\s+(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|week|weekend|month))\b`),
	regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

func ticketRules() map[string]SlotRule {
	return map[string]SlotRule{
		"type":            parseType,
		"from":            func(text string) string { return placeAfterMarker(fromMarker, text) },
		"to":              func(text string) string { return placeAfterMarker(toMarker, text) },
		"date":            parseDate,
		"class":           parseClass,
		"passenger_count": parseCount,
	}
}

// placeAfterMarker returns the first plausible place following marker.
func placeAfterMarker(marker *regexp.Regexp, text string) string {
	for _, loc := range marker.FindAllStringIndex(text, -1) {
		m := placeAfter.FindStringSubmatch(text[loc[1]:])
		if m == nil {
			continue
		}
		place := strings.TrimSpace(m[1])
		first := strings.ToLower(strings.Fields(place + " x")[0])
		if place == "" || notPlaces[first] || numberWords[first] > 0 {
			continue
		}
		return place
	}
	return ""
}

func parseType(text string) string {
	m := typePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	t := strings.ToLower(m[1])
	if t == "plane" {
		t = "flight"
	}
	return t
}

func parseClass(text string) string {
	m := classWord.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	switch c := strings.ToLower(strings.Join(strings.Fields(m[1]), " ")); c {
	case "first class":
		return "First"
	case "premium economy":
		return "Premium Economy"
	default:
		return strings.ToUpper(c[:1]) + c[1:]
	}
}

func parseDate(text string) string {
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// parseCount reads "2 passengers", "three people", "just me" or a bare
// number.
func parseCount(text string) string {
	if m := countWord.FindStringSubmatch(text); m != nil {
		return normalizeCount(m[1])
	}
	if soloWord.MatchString(text) {
		return "1"
	}
	if f := strings.Fields(strings.Trim(text, " .!")); len(f) == 1 {
		return normalizeCount(f[0])
	}
	return ""
}

func normalizeCount(s string) string {
	s = strings.ToLower(s)
	if n, ok := numberWords[s]; ok {
		return strconv.Itoa(n)
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return strconv.Itoa(n)
	}
	return ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
