// Package matching implements the Matching Pipeline (§4.E): comparing
// opaque track records from one provider against search results from
// the other, deduplicating against what already exists in the target
// playlist.
package matching

import (
	"html"
	"regexp"
	"strings"
)

// stopwords is the fixed normalization stop-word set. Pinned by the
// acceptance scenarios in §8 — do not extend without re-checking those.
var stopwords = map[string]bool{
	"feat": true, "featuring": true, "official": true, "music": true,
	"video": true, "audio": true, "topic": true, "ft": true, "mv": true,
	"ver": true, "lyrics": true, "live": true, "album": true, "cover": true,
}

var tokenRe = regexp.MustCompile(`\b\w+\b`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// Normalize lowercases, HTML-entity-decodes, strips punctuation, and
// drops stop words and artist-name tokens, returning the space-joined
// remaining tokens. Used both for deduplication keys and as a search
// auxiliary query. Idempotent: Normalize(Normalize(x), artist) == Normalize(x, artist)
// once artist tokens have already been removed.
func Normalize(title, artist string) string {
	decoded := html.UnescapeString(title)
	titleTokens := tokenize(decoded)

	artistTokens := make(map[string]bool)
	for _, t := range tokenize(artist) {
		artistTokens[t] = true
	}

	kept := make([]string, 0, len(titleTokens))
	for _, tok := range titleTokens {
		if stopwords[tok] || artistTokens[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
