package periods

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

var supportedLocales = []language.Tag{language.Spanish, language.English, language.Portuguese}

var monthNames = map[language.Base][12]string{
	mustBase(language.Spanish):    {"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sep", "oct", "nov", "dic"},
	mustBase(language.English):    {"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"},
	mustBase(language.Portuguese): {"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"},
}

var localeMatcher = language.NewMatcher(supportedLocales)

// Labeler renders human labels for scheduling windows.
type Labeler struct {
	tag    language.Tag
	months [12]string
}

// NewLabeler resolves locale against the supported set, falling back to Spanish.
func NewLabeler(locale string) *Labeler {
	tag := language.Spanish
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, _ := localeMatcher.Match(parsed)
			tag = supportedLocales[idx]
		}
	}
	return &Labeler{
		tag:    tag,
		months: monthNames[mustBase(tag)],
	}
}

// Locale returns the resolved language tag.
func (l *Labeler) Locale() language.Tag {
	if l == nil {
		return language.Spanish
	}
	return l.tag
}

// Label formats w as "1–15 oct 2026".
func (l *Labeler) Label(w Window) string {
	if l == nil {
		l = NewLabeler("")
	}
	return fmt.Sprintf("%d–%d %s %d", w.Start.Day(), w.End.Day(), l.months[w.Start.Month()-time.January], w.Start.Year())
}

func mustBase(tag language.Tag) language.Base {
	base, _ := tag.Base()
	return base
}
