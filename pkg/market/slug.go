package market

import (
	"fmt"
	"strings"
	"time"
)

// TokenizeCity lowercases a city name and joins its words with hyphens,
// the form Polymarket uses inside event slugs.
func TokenizeCity(city string) string {
	return strings.Join(strings.Fields(strings.ToLower(city)), "-")
}

// cityAliases lists slug spellings the venue has used for the same city,
// in priority order. New York is the persistent offender.
var cityAliases = map[string][]string{
	"new-york-city": {"nyc", "new-york-city", "new-york"},
	"new-york":      {"nyc", "new-york", "new-york-city"},
	"nyc":           {"nyc", "new-york-city", "new-york"},
}

// EventSlugs generates the candidate event slugs for a city and event
// day, in the order they should be tried. The first slug that returns an
// event wins.
func EventSlugs(city string, day time.Time) []string {
	token := TokenizeCity(city)
	names := cityAliases[token]
	if names == nil {
		names = []string{token}
	}

	month := strings.ToLower(day.Month().String())
	var slugs []string
	for _, name := range names {
		slugs = append(slugs,
			fmt.Sprintf("highest-temperature-in-%s-on-%s-%d", name, month, day.Day()),
			fmt.Sprintf("highest-temperature-in-%s-%s-%d", name, month, day.Day()),
		)
	}
	return slugs
}
