package chat

import (
	"fmt"
	"strings"
)

// Strings holds the user-visible text the manager synthesizes itself.
type Strings struct {
	Greeting    string
	NoResponse  string
	ErrorFormat string // fmt format with a single %s for the failure detail
}

// DefaultStrings returns the strings for a locale. Any "es" locale
// ("es", "es-AR", "es_MX") selects Spanish; everything else is English.
func DefaultStrings(locale string) Strings {
	if isSpanish(locale) {
		return Strings{
			Greeting:    "¡Hola! Estoy para ayudarte a encontrar la mejor alternativa en seguros.",
			NoResponse:  "Sin respuesta",
			ErrorFormat: "Lo sentimos, hubo un error: %s",
		}
	}
	return Strings{
		Greeting:    "Hi! I'm here to help you find the best insurance option.",
		NoResponse:  "No response",
		ErrorFormat: "Sorry, there was an error: %s",
	}
}

func isSpanish(locale string) bool {
	locale = strings.ToLower(locale)
	return locale == "es" || strings.HasPrefix(locale, "es-") || strings.HasPrefix(locale, "es_")
}

// Error renders a failure detail into the localized error message. A
// format without a verb gets the detail appended after a colon.
func (s Strings) Error(err error) string {
	if !hasVerb(s.ErrorFormat) {
		prefix := strings.ReplaceAll(s.ErrorFormat, "%%", "%")
		return strings.TrimRight(prefix, " :") + ": " + err.Error()
	}
	return fmt.Sprintf(s.ErrorFormat, err.Error())
}

func hasVerb(format string) bool {
	return strings.Count(format, "%")-2*strings.Count(format, "%%") > 0
}

func (s *Strings) fill(defaults Strings) {
	if s.Greeting == "" {
		s.Greeting = defaults.Greeting
	}
	if s.NoResponse == "" {
		s.NoResponse = defaults.NoResponse
	}
	if s.ErrorFormat == "" {
		s.ErrorFormat = defaults.ErrorFormat
	}
}
