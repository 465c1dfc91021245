package annotation

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

// KeywordExtractor picks the title-worthy tokens of plain text, in order.
type KeywordExtractor interface {
	Keywords(text string) []string
}

// POS is a coarse part-of-speech class.
type POS int

const (
	Other POS = iota
	Noun
	ProperNoun
	Verb
	Auxiliary
	Modal
	Adjective
	Adverb
	Determiner
	Preposition
	Conjunction
	Pronoun
	Number
	Punctuation
)

// IsNominal reports whether p is a noun class.
func (p POS) IsNominal() bool { return p == Noun || p == ProperNoun }

// IsVerbal reports whether p is a lexical verb.
func (p POS) IsVerbal() bool { return p == Verb }

// IsModifier reports whether p is an adjective or adverb.
func (p POS) IsModifier() bool { return p == Adjective || p == Adverb }

// Tagger is a lexicon and suffix-heuristic part-of-speech tagger with a
// second pass of contextual corrections. It keeps nouns and verbs.
type Tagger struct {
	lexicon   map[string]POS
	stopwords *stopwords.Stopwords
}

var defaultTagger = NewTagger()

// NewTagger returns a Tagger loaded with the built-in English lexicon.
func NewTagger() *Tagger {
	t := &Tagger{
		lexicon:   make(map[string]POS),
		stopwords: stopwords.MustGet("en"),
	}
	t.loadLexicon()
	return t
}

// Keywords implements KeywordExtractor.
func (t *Tagger) Keywords(text string) []string {
	words := Words(text)
	tags := t.Tag(words)
	out := make([]string, 0, len(words))
	for i, w := range words {
		if tags[i].IsNominal() || tags[i].IsVerbal() {
			out = append(out, w)
		}
	}
	return out
}

// Tag returns one POS per word.
func (t *Tagger) Tag(words []string) []POS {
	tags := make([]POS, len(words))
	for i, w := range words {
		tags[i] = t.baseline(w)
	}

	for i := 1; i < len(tags); i++ {
		prev := tags[i-1]
		prevWord := strings.ToLower(words[i-1])
		switch {
		// "the run", "a quick stop"
		case (prev == Determiner || prev.IsModifier()) && tags[i].IsVerbal():
			tags[i] = Noun
		// "can call", "will ship"
		case prev == Modal && tags[i] == Noun:
			tags[i] = Verb
		// "need to book"
		case prevWord == "to" && tags[i] == Noun:
			tags[i] = Verb
		// "list of running"
		case prevWord == "of" && tags[i].IsVerbal():
			tags[i] = Noun
		}
	}
	return tags
}

func (t *Tagger) baseline(word string) POS {
	lower := strings.ToLower(word)
	if pos, ok := t.lexicon[lower]; ok {
		return pos
	}
	if isNumber(word) {
		return Number
	}
	if t.stopwords != nil && t.stopwords.Contains(lower) {
		return Other
	}
	return inferPOS(word, lower)
}

func inferPOS(word, lower string) POS {
	if r := []rune(word); len(r) > 0 && unicode.IsUpper(r[0]) {
		return ProperNoun
	}
	switch {
	case strings.HasSuffix(lower, "ly"):
		return Adverb
	case strings.HasSuffix(lower, "ing"), strings.HasSuffix(lower, "ed"), strings.HasSuffix(lower, "ize"):
		return Verb
	case strings.HasSuffix(lower, "ful"), strings.HasSuffix(lower, "less"), strings.HasSuffix(lower, "ous"),
		strings.HasSuffix(lower, "ive"), strings.HasSuffix(lower, "able"), strings.HasSuffix(lower, "ible"):
		return Adjective
	}
	return Noun
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' && r != '-' && r != ':' {
			return false
		}
	}
	return s != ""
}

// Words splits text into word tokens. Whitespace and punctuation are
// separators; apostrophes and hyphens inside a word are kept.
func Words(text string) []string {
	runes := []rune(text)
	var out []string
	start := -1
	for i, r := range runes {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r)
		if !inWord && start >= 0 && (r == '\'' || r == '’' || r == '-') &&
			i+1 < len(runes) && (unicode.IsLetter(runes[i+1]) || unicode.IsDigit(runes[i+1])) {
			inWord = true
		}
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			out = append(out, string(runes[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, string(runes[start:]))
	}
	return out
}

// SimpleTokenizer keeps every word token. It stands in for the tagger
// where part-of-speech filtering is unwanted.
type SimpleTokenizer struct{}

// Keywords implements KeywordExtractor.
func (SimpleTokenizer) Keywords(text string) []string { return Words(text) }

func (t *Tagger) loadLexicon() {
	set := func(pos POS, words ...string) {
		for _, w := range words {
			t.lexicon[w] = pos
		}
	}

	set(Determiner, "the", "a", "an", "this", "that", "these", "those", "my", "your", "his", "her",
		"its", "our", "their", "some", "any", "no", "every", "each", "all", "both", "few", "many", "much")
	set(Preposition, "in", "on", "at", "to", "for", "with", "by", "from", "of", "about", "into",
		"through", "during", "before", "after", "above", "below", "between", "under", "over", "around",
		"near", "toward", "towards", "upon", "within", "without", "across", "along", "via")
	set(Auxiliary, "is", "are", "was", "were", "be", "been", "being", "am",
		"have", "has", "had", "having", "do", "does", "did")
	set(Modal, "can", "could", "will", "would", "shall", "should", "may", "might", "must")
	set(Conjunction, "and", "or", "but", "nor", "yet", "so", "because", "although", "while", "if",
		"unless", "until", "since", "when", "where", "whether")
	set(Pronoun, "i", "you", "he", "she", "it", "we", "they", "me", "him", "us", "them", "who", "whom",
		"which", "what")
	set(Adjective, "new", "old", "good", "bad", "big", "small", "long", "short", "high", "low", "late",
		"first", "last", "next", "important", "urgent", "quick", "weekly", "daily", "monthly")
	set(Adverb, "very", "really", "too", "just", "only", "now", "then", "here", "there", "always",
		"never", "often", "soon", "again", "also", "already", "still")

	set(Verb, "buy", "call", "pay", "send", "email", "write", "read", "fix", "book", "meet", "go",
		"get", "make", "take", "bring", "pick", "clean", "cook", "finish", "start", "submit", "review",
		"check", "visit", "renew", "cancel", "order", "plan", "prepare", "return", "remember", "ask",
		"file", "ship", "deploy", "run", "walk", "see", "do")
	set(Noun, "today", "tomorrow", "tonight", "yesterday", "morning", "afternoon", "evening", "week",
		"month", "year", "day", "milk", "bread", "rent", "bill", "bills", "meeting", "appointment",
		"dentist", "doctor", "birthday", "mom", "dad", "groceries", "report", "invoice", "project",
		"deadline", "exam", "party", "trip", "flight", "car", "home", "work")
}
