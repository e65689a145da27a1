package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// minLetters is the shortest sample worth running through the detector.
const minLetters = 6

// newsLanguages bounds the detector to languages the feeds actually carry.
// Loading every lingua model costs around a gigabyte.
var newsLanguages = []lingua.Language{
	lingua.English,
	lingua.Hindi,
	lingua.Marathi,
	lingua.Bengali,
	lingua.Gujarati,
	lingua.Punjabi,
	lingua.Tamil,
	lingua.Telugu,
	lingua.Urdu,
	lingua.French,
	lingua.German,
	lingua.Spanish,
}

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// DetectISO6391 returns the two-letter code of text's language, or "" when
// the sample is too short or the detector is unsure.
func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(newsLanguages...).
			Build()
	})
	return detector
}

// Filter admits text whose detected language is in an allow list. Text the
// detector cannot place is admitted.
type Filter struct {
	allowed map[string]struct{}
}

// NewFilter builds a filter from codes such as "en" or "en-IN". It returns
// nil when no usable code is given; a nil filter admits everything.
func NewFilter(codes []string) *Filter {
	allowed := make(map[string]struct{}, len(codes))
	for _, raw := range codes {
		if code := NormalizeCode(raw); code != "" {
			allowed[code] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return nil
	}
	return &Filter{allowed: allowed}
}

// Allows reports whether text passes, along with the detected code.
func (f *Filter) Allows(text string) (string, bool) {
	if f == nil {
		return "", true
	}
	code := DetectISO6391(text)
	if code == "" {
		return "", true
	}
	_, ok := f.allowed[code]
	return code, ok
}

// NormalizeCode returns the primary subtag of a language tag, lowercased:
// "en" from "EN_us". Blank or non-alphabetic input gives "".
func NormalizeCode(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	tag = strings.ReplaceAll(tag, "_", "-")
	if dash := strings.IndexByte(tag, '-'); dash >= 0 {
		tag = tag[:dash]
	}
	if tag == "" {
		return ""
	}
	for _, r := range tag {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return tag
}
