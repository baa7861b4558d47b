package spokennum

// IsGiveUp reports whether raw is exactly one of the skip/pass/give-up
// phrases once normalized. Longer utterances that merely contain a phrase,
// like "give up please", do not count.
func IsGiveUp(raw string) bool {
	text := Normalize(raw)
	if text == "" {
		return false
	}
	_, ok := giveUpPhrases[text]
	return ok
}
