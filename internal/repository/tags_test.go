package repository

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/starford/notemirror/internal/models"
)

func tagged(tags ...*string) []models.Note {
	out := make([]models.Note, len(tags))
	for i, t := range tags {
		out[i] = models.Note{ID: uuid.New(), Tag: t}
	}
	return out
}

func TestDeriveTagsNoneFirst(t *testing.T) {
	got := DeriveTags(tagged(strp("work"), strp(""), strp("Alpha"), nil, strp("   "), strp("beta"), strp("work")))
	assert.Equal(t, []string{NoneTag, "Alpha", "beta", "work"}, got)
}

func TestDeriveTagsTrimsWhitespace(t *testing.T) {
	got := DeriveTags(tagged(strp("work"), strp(" work "), strp("home"), strp("\thome\n")))
	assert.Equal(t, []string{"home", "work"}, got)
	assert.Equal(t, "work", TagKey(models.Note{Tag: strp("  work")}))
}

func TestDeriveTagsEmpty(t *testing.T) {
	assert.Empty(t, DeriveTags(nil))
}

func TestDeriveTagsCaseTies(t *testing.T) {
	got := DeriveTags(tagged(strp("b"), strp("a"), strp("B"), strp("A")))
	assert.Equal(t, []string{"A", "a", "B", "b"}, got)
}

func TestDeriveTagsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOf(rapid.SampledFrom([]string{"", " ", "\t", "work", " work", "work\n", "Work", "home", " home ", "None", "zeta", "alpha"})).Draw(t, "tags")
		notes := make([]models.Note, len(raw))
		blank := false
		for i, s := range raw {
			s := s
			notes[i] = models.Note{ID: uuid.New(), Tag: &s}
			if strings.TrimSpace(s) == "" {
				blank = true
			}
		}
		got := DeriveTags(notes)

		seen := map[string]bool{}
		for _, g := range got {
			if seen[g] {
				t.Fatalf("duplicate tag %q in %v", g, got)
			}
			seen[g] = true
			if strings.TrimSpace(g) == "" {
				t.Fatalf("blank tag leaked into index: %v", got)
			}
			if strings.TrimSpace(g) != g {
				t.Fatalf("untrimmed tag %q in %v", g, got)
			}
		}
		if blank && got[0] != NoneTag {
			t.Fatalf("None must sort first, got %v", got)
		}
		for i := 1; i < len(got); i++ {
			if got[i] == NoneTag {
				t.Fatalf("None not first: %v", got)
			}
			if i > 1 || got[0] != NoneTag {
				if strings.ToLower(got[i-1]) > strings.ToLower(got[i]) {
					t.Fatalf("not case-insensitively sorted: %v", got)
				}
			}
		}
	})
}
