package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Configure loads the "default" catalog for lang from localesDir. lang accepts
// POSIX locale strings such as "en_US.UTF-8".
func Configure(localesDir, lang string) {
	gotext.Configure(localesDir, normalizeLanguage(lang), "default")
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" || lang == "c" || lang == "posix" {
		return "en"
	}
	return lang
}

// Translate returns the catalog entry for msgID, or msgID itself when the catalog
// has none, formatted with vars.
func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
