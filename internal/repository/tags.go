package repository

import (
	"sort"
	"strings"

	"github.com/starford/notemirror/internal/models"
)

// NoneTag buckets notes without a usable tag. It always sorts first.
const NoneTag = "None"

// DeriveTags returns the distinct trimmed tags of notes with blank tags
// mapped to NoneTag, NoneTag first and the rest in case-insensitive order.
func DeriveTags(notes []models.Note) []string {
	seen := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		seen[TagKey(n)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return lessTag(out[i], out[j]) })
	return out
}

// TagKey is the tag-index bucket a note falls into: the tag without
// surrounding whitespace, or NoneTag when nothing is left.
func TagKey(n models.Note) string {
	t := strings.TrimSpace(n.TagValue())
	if t == "" {
		return NoneTag
	}
	return t
}

func lessTag(a, b string) bool {
	switch {
	case a == NoneTag:
		return b != NoneTag
	case b == NoneTag:
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
