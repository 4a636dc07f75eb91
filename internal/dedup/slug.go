package dedup

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSlugLength is counted in runes.
const maxSlugLength = 80

// Latin letters that do not decompose into an ASCII base.
var latinExtras = map[rune]string{
	'ß': "ss", 'æ': "ae", 'œ': "oe", 'ø': "o", 'đ': "d", 'ð': "d", 'ł': "l", 'þ': "th",
}

// newAccentFolder strips diacritics from Latin text. A Chain keeps internal
// buffers, so every Slugify call builds its own.
func newAccentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Slugify turns a title into a lower-case, dash-separated slug. Latin text
// is folded to [a-z0-9]; letters of other scripts are kept with their
// combining marks, so a Telugu title yields a Telugu slug. Titles with no
// letters or digits at all fall back to "article".
func Slugify(title string) string {
	fold := newAccentFolder()

	var b strings.Builder
	dash := false
	native := false // last kept rune belongs to a non-Latin script

	emit := func(r rune) {
		b.WriteRune(r)
		dash = false
	}
	separate := func() {
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
		native = false
	}

	for _, r := range norm.NFKC.String(title) {
		r = unicode.ToLower(r)
		switch {
		case r == '\'' || r == '’':
			// drop apostrophes so "Don't" becomes "dont"
		case r < utf8.RuneSelf:
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				emit(r)
				native = false
			} else {
				separate()
			}
		case unicode.Is(unicode.Latin, r):
			native = false
			if s, ok := latinExtras[r]; ok {
				for _, c := range s {
					emit(c)
				}
				continue
			}
			folded, _, err := transform.String(fold, string(r))
			if err != nil {
				continue
			}
			for _, c := range folded {
				if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
					emit(c)
				}
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			emit(r)
			native = true
		case unicode.IsMark(r):
			if native {
				emit(r)
			}
		default:
			separate()
		}
	}

	slug := strings.Trim(b.String(), "-")
	if rs := []rune(slug); len(rs) > maxSlugLength {
		rs = rs[:maxSlugLength]
		for i := len(rs) - 1; i > maxSlugLength/2; i-- {
			if rs[i] == '-' {
				rs = rs[:i]
				break
			}
		}
		slug = strings.TrimRight(string(rs), "-")
	}
	if slug == "" {
		return "article"
	}
	return slug
}
