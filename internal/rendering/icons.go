package rendering

import (
	"fmt"
	"strings"

	"github.com/gilkh/livret/internal/layout"
)

// Language codes that do not match the country whose flag represents them.
var languageCountries = map[string]string{
	"en": "gb",
	"ar": "lb",
	"he": "il",
	"el": "gr",
	"zh": "cn",
	"ja": "jp",
	"ko": "kr",
	"hi": "in",
	"fa": "ir",
	"ur": "pk",
	"sv": "se",
	"da": "dk",
	"uk": "ua",
	"cs": "cz",
	"hy": "am",
}

func countryCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if cc, ok := languageCountries[code]; ok {
		return cc
	}
	return code
}

// FlagEmoji turns a two-letter country code into its regional indicator pair.
func FlagEmoji(code string) string {
	cc := countryCode(code)
	if len(cc) != 2 || cc[0] < 'a' || cc[0] > 'z' || cc[1] < 'a' || cc[1] > 'z' {
		return ""
	}
	return string([]rune{0x1F1E6 + rune(cc[0]-'a'), 0x1F1E6 + rune(cc[1]-'a')})
}

// EmojiCodepoints formats an emoji as the dash-joined lowercase hex used by
// emoji image CDNs. Variation selectors are dropped.
func EmojiCodepoints(emoji string) string {
	var parts []string
	for _, r := range emoji {
		if r == 0xFE0F {
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	return strings.Join(parts, "-")
}

// IconURLs builds language icon URLs for the two strip styles.
type IconURLs struct {
	EmojiCDN string
	FlagCDN  string
}

// For returns the icon of item in style v1 (country flags) or v2 (emoji).
func (u IconURLs) For(item layout.LanguageItem, style string) string {
	if item.Logo != "" {
		return item.Logo
	}
	if style == "v1" {
		cc := countryCode(item.Code)
		if cc == "" {
			return ""
		}
		return fmt.Sprintf("%s/%s.png", u.FlagCDN, cc)
	}
	emoji := item.Emoji
	if emoji == "" {
		emoji = FlagEmoji(item.Code)
	}
	if emoji == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s.png", u.EmojiCDN, EmojiCodepoints(emoji))
}
