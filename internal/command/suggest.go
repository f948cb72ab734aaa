package command

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/jarvis/pkg/textnorm"
)

// DefaultSuggestThreshold is the minimum Jaro-Winkler similarity for a
// suggestion.
const DefaultSuggestThreshold = 0.75

// Suggestion is the closest trigger to an unmatched input.
type Suggestion struct {
	Command    Command
	Similarity float64
}

// Suggest returns the command whose trigger is most similar to input by
// Jaro-Winkler similarity, if it reaches minSimilarity. It is only used for
// "did you mean" feedback and never influences [Matcher.Match].
func Suggest(reg *Registry, input string, minSimilarity float64) (Suggestion, bool) {
	in := textnorm.Normalize(input)
	if in == "" {
		return Suggestion{}, false
	}
	var best Suggestion
	for _, c := range reg.List() {
		sim := matchr.JaroWinkler(in, strings.ToLower(c.Trigger), false)
		if sim > best.Similarity {
			best = Suggestion{Command: c, Similarity: sim}
		}
	}
	if best.Similarity < minSimilarity {
		return Suggestion{}, false
	}
	return best, true
}
