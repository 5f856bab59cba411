package crawl

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// loopSimilarity is the pairwise ratio above which transcripts in the
// rolling window count as the same prompt repeating.
const loopSimilarity = 0.9

// similarity returns a 0..1 ratio between two strings, case-insensitive and
// character-level.
func similarity(a, b string) float64 {
	left := strings.Split(strings.ToLower(a), "")
	right := strings.Split(strings.ToLower(b), "")
	return difflib.NewMatcher(left, right).Ratio()
}

// rankDigits orders menu digits by descending similarity between each
// option's label and the query, so the branch closest to the caller's intent
// is explored first. Ties break on digit order to keep the ranking stable.
func rankDigits(options map[string]string, query string) []string {
	digits := make([]string, 0, len(options))
	for digit := range options {
		digits = append(digits, digit)
	}
	sort.Slice(digits, func(i, j int) bool {
		si := similarity(options[digits[i]], query)
		sj := similarity(options[digits[j]], query)
		if si != sj {
			return si > sj
		}
		return digits[i] < digits[j]
	})
	return digits
}

// sameMenu reports whether two parsed menus carry identical options.
func sameMenu(a, b map[string]string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for digit, label := range a {
		if b[digit] != label {
			return false
		}
	}
	return true
}
