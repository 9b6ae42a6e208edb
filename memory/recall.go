package memory

import (
	"fmt"
	"strings"
)

// NoInformation is the fixed answer when a recalled slot was never stored.
const NoInformation = "I don't have that information yet."

// FormatRecall renders a stored slot value as an answer.
func FormatRecall(slot, value string) string {
	switch {
	case slot == "name":
		return fmt.Sprintf("Your name is %s.", Title(value))
	case slot == "age":
		return fmt.Sprintf("You are %s years old.", value)
	case slot == "location":
		return fmt.Sprintf("You live in %s.", Title(value))
	case strings.Contains(slot, "exam"):
		return fmt.Sprintf("Your exam is on %s.", value)
	case slot == "certificate" || slot == "certification":
		return fmt.Sprintf("You mentioned %s.", value)
	case slot == "project":
		return fmt.Sprintf("You said you are working on %s.", value)
	case slot == "job":
		return fmt.Sprintf("You mentioned your job is %s.", value)
	}
	return fmt.Sprintf("You mentioned that your %s is %s.", Label(slot), value)
}

// FormatMissing renders the answer for one slot of a multi-slot question
// that has no stored value.
func FormatMissing(slot string) string {
	return fmt.Sprintf("I don't have your %s yet.", Label(slot))
}

// Acknowledge renders the confirmation for a stored update.
func Acknowledge(u Update) string {
	switch u.Type {
	case "name":
		return fmt.Sprintf("Nice to meet you, %s. I'll remember that.", Title(u.Value))
	case "age":
		return fmt.Sprintf("Got it. You are %s years old.", u.Value)
	case "location":
		return fmt.Sprintf("Understood. You live in %s.", Title(u.Value))
	}
	return fmt.Sprintf("I've noted that your %s is %s.", Label(u.Type), u.Value)
}

// AcknowledgeAll joins the confirmations of several updates.
func AcknowledgeAll(updates []Update) string {
	parts := make([]string, len(updates))
	for i, u := range updates {
		parts[i] = Acknowledge(u)
	}
	return strings.Join(parts, " ")
}

// FuzzyLookup finds a stored key that contains, or is contained in, slot.
// Candidates are tried in sorted order so the result is stable.
func FuzzyLookup(slot string, facts map[string]string, sortedKeys []string) (key, value string, ok bool) {
	if slot == "" {
		return "", "", false
	}
	for _, k := range sortedKeys {
		v := facts[k]
		if k == "" || v == "" {
			continue
		}
		if strings.Contains(k, slot) || strings.Contains(slot, k) {
			return k, v, true
		}
	}
	return "", "", false
}
