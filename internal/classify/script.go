package classify

import "golang.org/x/text/language"

// ISO 15924 codes mapped to the script names used in the keyword tables.
var tableScripts = map[string]string{
	"Latn": "latin",
	"Telu": "telugu",
	"Deva": "devanagari",
	"Taml": "tamil",
	"Knda": "kannada",
	"Beng": "bengali",
}

// scriptFor resolves a language code such as "te" or "hi-IN" to a table
// script. ok is false for unknown or unparsable languages.
func scriptFor(lang string) (script string, ok bool) {
	if lang == "" {
		return "", false
	}
	tag, err := language.Parse(lang)
	if err != nil || tag == language.Und {
		return "", false
	}
	s, conf := tag.Script()
	if conf == language.No {
		return "", false
	}
	script, ok = tableScripts[s.String()]
	return script, ok
}

// BaseLanguage returns the primary subtag ("te" for "te-IN"), used to scope
// categories and counts.
func BaseLanguage(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil || tag == language.Und {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}
