package projection

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/starford/notemirror/internal/models"
)

type noteSource []models.Note

func (s noteSource) String(i int) string { return s[i].Title + " " + s[i].Body }
func (s noteSource) Len() int            { return len(s) }

// Search fuzzy-matches query against title and body, best match first.
// A blank query returns notes unchanged.
func Search(notes []models.Note, query string) []models.Note {
	query = strings.TrimSpace(query)
	if query == "" {
		return append([]models.Note(nil), notes...)
	}
	matches := fuzzy.FindFrom(query, noteSource(notes))
	out := make([]models.Note, 0, len(matches))
	for _, m := range matches {
		out = append(out, notes[m.Index])
	}
	return out
}
