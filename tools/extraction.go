package tools

// FactExtractionSchema describes the strict JSON a generator must return when
// asked to extract personal facts: three optional category maps of strings.
func FactExtractionSchema() map[string]interface{} {
	category := func(desc string) map[string]interface{} {
		return MapProperty(desc, StringProperty("Fact value as stated by the user"))
	}
	return ObjectSchema(map[string]interface{}{
		"identity":    category("Who the user is: name, age, location, job"),
		"preferences": category("Likes and favorites, e.g. favorite_food"),
		"facts":       category("Any other personal fact"),
	})
}

// RecallSchema describes the confidence-gated recall answer.
func RecallSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"relevant":   BooleanProperty("Whether the stored information answers the question"),
		"confidence": RangeProperty("Confidence in the answer", 0, 1),
		"answer":     StringProperty("Answer using only stored information"),
	}, "relevant")
}

// SlotSchema describes slot-filling output restricted to the given slots.
// Values may be null when a slot is not mentioned.
func SlotSchema(slots []string) map[string]interface{} {
	props := make(map[string]interface{}, len(slots))
	for _, s := range slots {
		props[s] = NullableStringProperty("Value for " + s)
	}
	return ObjectSchema(props)
}
