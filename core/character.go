package core

import "strings"

// CharacterIDPrefix is the conventional prefix for character ids coming
// from the game client (e.g. "character_iron_man").
const CharacterIDPrefix = "character_"

// DisplayNameFromID derives a display name from a character id that
// follows the "character_<snake_name>" convention: strip the prefix,
// replace separators, title-case each word ("character_iron_man" ->
// "Iron Man"). Returns "" when the id does not follow the convention so
// callers can fall back to whatever name they already have.
func DisplayNameFromID(characterID string) string {
	if !strings.HasPrefix(characterID, CharacterIDPrefix) {
		return ""
	}
	raw := strings.TrimPrefix(characterID, CharacterIDPrefix)
	words := strings.Split(raw, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
