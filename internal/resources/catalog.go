// Package resources provides localized display strings.
package resources

import (
	"strings"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supported = []language.Tag{language.English, language.Russian}

var matcher = language.NewMatcher(supported)

// Catalog formats localized strings by key. It implements taxi.ResourceProvider.
type Catalog struct {
	printer *message.Printer
	keys    map[string]struct{}
}

// NewCatalog builds the catalog for locale, falling back to English for
// unsupported locales. currency is appended to formatted costs.
func NewCatalog(locale, currency string) *Catalog {
	currency = strings.ReplaceAll(currency, "%", "%%")
	templates := map[language.Tag]map[string]string{
		language.English: {
			taxi.TripDurationKey: "%d min",
			taxi.TripCostKey:     "%d " + currency,
		},
		language.Russian: {
			taxi.TripDurationKey: "%d мин",
			taxi.TripCostKey:     "%d " + currency,
		},
	}

	b := catalog.NewBuilder(catalog.Fallback(language.English))
	keys := make(map[string]struct{})
	for tag, messages := range templates {
		for key, tmpl := range messages {
			_ = b.SetString(tag, key, tmpl)
			keys[key] = struct{}{}
		}
	}

	return &Catalog{
		printer: message.NewPrinter(Match(locale), message.Catalog(b)),
		keys:    keys,
	}
}

// Match returns the supported language closest to locale.
func Match(locale string) language.Tag {
	_, idx, _ := matcher.Match(language.Make(locale))
	return supported[idx]
}

// GetString formats the template stored under key. Unknown keys are
// returned unchanged.
func (c *Catalog) GetString(key string, args ...any) string {
	if _, ok := c.keys[key]; !ok {
		return key
	}
	return c.printer.Sprintf(key, args...)
}
