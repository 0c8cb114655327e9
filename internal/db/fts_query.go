package db

import (
	"strings"
	"unicode"
)

// englishStopWords mirrors the PostgreSQL english dictionary stop list, so
// both backends ignore the same words.
var englishStopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		i me my myself we our ours ourselves you your yours yourself yourselves
		he him his himself she her hers herself it its itself they them their
		theirs themselves what which who whom this that these those am is are
		was were be been being have has had having do does did doing a an the
		and but if or because as until while of at by for with about against
		between into through during before after above below to from up down in
		out on off over under again further then once here there when where why
		how all any both each few more most other some such no nor not only own
		same so than too very s t can will just don should now`) {
		englishStopWords[w] = struct{}{}
	}
}

// ftsTerms splits text into lower-cased runs of letters, numbers and
// private-use characters, the token classes of the unicode61 tokenizer,
// dropping stop words.
func ftsTerms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Co, r)
	})
	terms := words[:0]
	for _, w := range words {
		if _, stop := englishStopWords[w]; !stop {
			terms = append(terms, w)
		}
	}
	return terms
}

// ftsOperand renders terms as one FTS5 string: a single token or a phrase.
// Terms contain only letters and digits, so no escaping is needed.
func ftsOperand(terms []string) string {
	return `"` + strings.Join(terms, " ") + `"`
}

// toFTSQuery translates web-search style input into an FTS5 MATCH
// expression. Unquoted words are ANDed, "quoted text" is a phrase, the word
// "or" joins its neighbours and a leading "-" excludes a word or phrase.
// It returns "" when nothing searchable remains, including queries made
// only of exclusions.
func toFTSQuery(input string) string {
	var (
		groups  [][]string
		negated []string
		pendOr  bool
	)
	emit := func(raw string, quoted, negate bool) {
		if !quoted && !negate && strings.EqualFold(raw, "or") {
			pendOr = len(groups) > 0
			return
		}
		terms := ftsTerms(raw)
		if len(terms) == 0 {
			return
		}
		operand := ftsOperand(terms)
		switch {
		case negate:
			negated = append(negated, operand)
		case pendOr:
			last := len(groups) - 1
			groups[last] = append(groups[last], operand)
		default:
			groups = append(groups, []string{operand})
		}
		pendOr = false
	}

	rs := []rune(input)
	for i := 0; i < len(rs); {
		if unicode.IsSpace(rs[i]) {
			i++
			continue
		}
		negate := false
		if rs[i] == '-' {
			negate = true
			i++
			if i >= len(rs) || unicode.IsSpace(rs[i]) {
				continue
			}
		}
		if rs[i] == '"' {
			end := i + 1
			for end < len(rs) && rs[end] != '"' {
				end++
			}
			emit(string(rs[i+1:end]), true, negate)
			i = end + 1
			continue
		}
		end := i
		for end < len(rs) && !unicode.IsSpace(rs[end]) && rs[end] != '"' {
			end++
		}
		emit(string(rs[i:end]), false, negate)
		i = end
	}

	if len(groups) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(groups))
	for _, g := range groups {
		if len(g) == 1 {
			clauses = append(clauses, g[0])
		} else {
			clauses = append(clauses, "("+strings.Join(g, " OR ")+")")
		}
	}
	match := strings.Join(clauses, " AND ")
	if len(negated) > 0 {
		match = "(" + match + ") NOT (" + strings.Join(negated, " OR ") + ")"
	}
	return match
}
