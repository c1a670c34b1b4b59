// Package emojis maps symbolic emoji names to the HTML entity
// codepoints stored on events. Analyzers reference emojis by name so
// the table here is the only place codepoints appear.
package emojis

import "strings"

type Emoji struct {
	Code string
	Help string
}

var emoji_map = map[string]Emoji{
	"BUCKET":           {"&#x1FAA3", "Storage bucket"},
	"CAMERA":           {"&#x1F4F7", "Screenshot activity"},
	"FISHING_POLE":     {"&#x1F3A3", "Phishing"},
	"GLOBE":            {"&#x1F30D", "Domain resolution activity"},
	"HIGH_VOLTAGE":     {"&#x26A1", "Application crash"},
	"ID_BUTTON":        {"&#x1F194", "Account ID"},
	"LINK":             {"&#x1F517", "Events linked"},
	"LOCK":             {"&#x1F512", "Logon activity"},
	"LOCOMOTIVE":       {"&#x1F682", "Execution activity"},
	"MAGNIFYING_GLASS": {"&#x1F50D", "Search related activity"},
	"SATELLITE":        {"&#x1F4E1", "Domain activity"},
	"SCREEN":           {"&#x1F5B5", "Screensaver activity"},
	"SKULL":            {"&#x1F480", "Threat intel match"},
	"SKULL_CROSSBONE":  {"&#x2620", "Suspicious entry"},
	"SLEEPING_FACE":    {"&#x1F634", "Activity outside of regular hours"},
	"UNLOCK":           {"&#x1F513", "Logoff activity"},
	"WASTEBASKET":      {"&#x1F5D1", "Deletion activity"},
}

// GetEmoji returns the codepoint for a symbolic name, or the empty
// string for unknown names. Lookup is case insensitive.
func GetEmoji(name string) string {
	emoji, ok := emoji_map[strings.ToUpper(name)]
	if !ok {
		return ""
	}
	return emoji.Code
}

// GetHelperFromUnicode returns the helper text for a codepoint, or
// the empty string when no emoji uses it.
func GetHelperFromUnicode(code string) string {
	for _, emoji := range emoji_map {
		if emoji.Code == code {
			return emoji.Help
		}
	}
	return ""
}

// GetEmojisAsDict returns a codepoint to helper text map, used by
// API surfaces that render legends.
func GetEmojisAsDict() map[string]string {
	result := make(map[string]string)
	for _, emoji := range emoji_map {
		result[emoji.Code] = emoji.Help
	}
	return result
}
