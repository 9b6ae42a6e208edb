package memory

import (
	"regexp"
	"strings"
)

// Update is a fact assertion found in a user message.
type Update struct {
	// Type is the canonical slot key, e.g. "name" or "favorite_food".
	Type string

	// Value is the asserted value, lower-cased as typed.
	Value string

	// Original is the clause the update was found in.
	Original string
}

// Recall is a question about a previously stored slot.
type Recall struct {
	RequestedSlot string
}

type updateRule struct {
	slot     string
	patterns []*regexp.Regexp
}

// updateRules are tried in order; the first pattern yielding a usable value wins.
var updateRules = []updateRule{
	{"age", compile(`i am (\d+) years old`, `my age is (\d+)`, `i'm (\d+) years old`)},
	{"location", compile(`i live in (.*)`, `i am from (.*)`, `my city is (.*)`)},
	{"certificate", compile(`i (?:got|completed|have) (.*) (?:certificate|certification)`, `my (?:certificate|certification) is (.*)`)},
	{"project", compile(`i am working on (.*) project`, `working on (.*)`, `my project is (.*)`)},
	{"exam_date", compile(`my exam is on (.*)`, `i have an exam on (.*)`)},
	{"job", compile(`my job is (.*)`, `i work as (?:a |an )?(.*)`, `i am (?:a |an )?(.* intern)`)},
	{"name", compile(`my name is (.*)`, `call me (.*)`, `i am (.*)`)},
}

var genericUpdate = regexp.MustCompile(`^my ([\w\s]{1,20}) is (.*)$`)

// genericStopSlots are "my X is ..." subjects that are not personal facts.
var genericStopSlots = map[string]bool{
	"problem":  true,
	"issue":    true,
	"question": true,
	"request":  true,
	"goal":     true,
}

// notNames are short "i am ..." completions that describe a state, not a name.
var notNames = map[string]bool{
	"fine": true, "good": true, "ok": true, "okay": true, "here": true,
	"back": true, "sure": true, "not sure": true, "tired": true, "happy": true,
	"sorry": true, "done": true, "ready": true, "confused": true, "busy": true,
}

// questionPrefix marks clauses that ask rather than assert.
var questionPrefix = regexp.MustCompile(`^(?:what|what's|who|where|when|which|how|why|do|does|did|can|could|is|are|was|will|would|tell me|remind me)\b`)

// DetectUpdate finds a single fact assertion in text. It returns nil when
// text asserts nothing. Only the first matching rule is reported.
func DetectUpdate(text string) *Update {
	t := normalizeText(text)
	if t == "" {
		return nil
	}

	for _, rule := range updateRules {
		for _, p := range rule.patterns {
			m := p.FindStringSubmatch(t)
			if m == nil {
				continue
			}
			val := cleanValue(m[1])
			if val == "" {
				continue
			}
			if rule.slot == "name" && !plausibleName(val) {
				continue
			}
			return &Update{Type: rule.slot, Value: val, Original: text}
		}
	}

	if m := genericUpdate.FindStringSubmatch(t); m != nil {
		slot := strings.TrimSpace(m[1])
		key := CanonicalKey(slot)
		val := cleanValue(m[2])
		if key == "" || val == "" || genericStopSlots[slot] || (key == "name" && !plausibleName(val)) {
			return nil
		}
		return &Update{Type: key, Value: val, Original: text}
	}
	return nil
}

// DetectUpdates finds every fact assertion in text. Sentences are split into
// clauses on "and" and commas; a clause that asserts nothing is joined back
// onto the preceding assertion, so "i live in paris and rome" keeps one value.
// Questions never produce updates.
func DetectUpdates(text string) []Update {
	var out []Update
	for _, sentence := range splitSentences(text) {
		parts, seps := splitClauses(sentence)

		current, idx := "", -1
		for i, part := range parts {
			if questionPrefix.MatchString(normalizeText(part)) {
				current, idx = "", -1
				continue
			}
			if u := DetectUpdate(part); u != nil {
				out = append(out, *u)
				current, idx = part, len(out)-1
				continue
			}
			if idx < 0 {
				continue
			}
			current = current + seps[i-1] + part
			u := DetectUpdate(current)
			if u != nil && u.Type == out[idx].Type && strings.HasPrefix(u.Value, out[idx].Value) {
				out[idx] = *u
			}
		}
	}
	return out
}

var literalRecalls = []struct {
	slot    string
	phrases []string
}{
	{"name", []string{"what is my name", "who am i", "tell me my name"}},
	{"age", []string{"how old am i", "what is my age", "did i tell you my age"}},
	{"location", []string{"where do i live", "which city did i mention"}},
}

var keywordRecalls = []updateRule{
	{"certificate", compile(`what certificate`, `what certification`, `my certificate`, `my certification`)},
	{"exam_date", compile(`when is my exam`, `my exam date`)},
	{"project", compile(`what project`, `my project`)},
	{"job", compile(`what is my job`, `what do i do`, `my job`)},
}

// fallbackRecalls capture a free-form slot name, tried in order.
var fallbackRecalls = compile(
	`what did i tell you about (?:my )?([\w\s]+)`,
	`do you remember my ([\w\s]+)`,
	`what was my ([\w\s]+)`,
	`remind me .* about (?:my )?([\w\s]+)`,
	`(?:do )?(?:you )?(?:remember|know) my ([\w\s]+)`,
	`what(?: is|'s) my ([\w\s]+)`,
)

// fillerWords are trimmed from the end of captured slot names.
var fillerWords = map[string]bool{
	"right": true, "please": true, "again": true, "now": true,
	"correct": true, "ok": true, "okay": true, "is": true,
}

// DetectRecall finds a question about a stored slot in text, or nil.
func DetectRecall(text string) *Recall {
	t := normalizeText(text)
	if t == "" {
		return nil
	}

	for _, lr := range literalRecalls {
		for _, p := range lr.phrases {
			if strings.Contains(t, p) {
				return &Recall{RequestedSlot: lr.slot}
			}
		}
	}

	for _, kr := range keywordRecalls {
		for _, p := range kr.patterns {
			if p.MatchString(t) {
				return &Recall{RequestedSlot: kr.slot}
			}
		}
	}

	for _, p := range fallbackRecalls {
		m := p.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		if slot := cleanSlot(m[1]); slot != "" {
			return &Recall{RequestedSlot: slot}
		}
	}
	return nil
}

// DetectRecalls finds every slot asked about in text, in order and without
// duplicates: "what is my name and where do i live" asks for name and location.
func DetectRecalls(text string) []Recall {
	var (
		out  []Recall
		seen = map[string]bool{}
	)
	add := func(r *Recall) {
		if r != nil && !seen[r.RequestedSlot] {
			seen[r.RequestedSlot] = true
			out = append(out, *r)
		}
	}

	for _, sentence := range splitSentences(text) {
		parts, _ := splitClauses(sentence)
		for _, part := range parts {
			add(DetectRecall(part))
		}
	}
	if len(out) == 0 {
		add(DetectRecall(text))
	}
	return out
}

var (
	sentenceBoundary = regexp.MustCompile(`[.!?;]+\s+`)
	clauseBoundary   = regexp.MustCompile(`\s+and\s+|,\s*`)
)

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceBoundary.Split(strings.TrimSpace(text), -1) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitClauses returns the clauses of sentence and the separators between
// them; seps[i] sits between parts[i] and parts[i+1].
func splitClauses(sentence string) (parts, seps []string) {
	last := 0
	for _, loc := range clauseBoundary.FindAllStringIndex(sentence, -1) {
		parts = append(parts, sentence[last:loc[0]])
		seps = append(seps, sentence[loc[0]:loc[1]])
		last = loc[1]
	}
	parts = append(parts, sentence[last:])
	return parts, seps
}

func normalizeText(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.Trim(t, "?!.")
	return strings.TrimSpace(t)
}

func cleanValue(v string) string {
	return strings.Trim(v, " .,!?")
}

func cleanSlot(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for len(words) > 0 && fillerWords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	if len(words) > 0 && words[0] == "my" {
		words = words[1:]
	}
	return CanonicalKey(strings.Join(words, " "))
}

func plausibleName(v string) bool {
	if len(strings.Fields(v)) > 2 {
		return false
	}
	if strings.Contains(v, "working") || strings.Contains(v, "living") {
		return false
	}
	if notNames[v] {
		return false
	}
	// "i am travelling alone" describes an activity.
	if first := strings.Fields(v)[0]; len(first) > 4 && strings.HasSuffix(first, "ing") {
		return false
	}
	// "i am 25" is an age without units, not a name.
	return !strings.ContainsAny(v[:1], "0123456789")
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
