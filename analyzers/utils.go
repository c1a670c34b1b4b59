package analyzers

import (
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Flag names accepted in analyzer definitions. ASCII is the default
// matching mode already so it maps to no inline flag. LOCALE and
// VERBOSE have no equivalent and are rejected at load time.
var regex_flag_map = map[string]string{
	"IGNORECASE": "i",
	"I":          "i",
	"MULTILINE":  "m",
	"M":          "m",
	"DOTALL":     "s",
	"S":          "s",
	"ASCII":      "",
	"A":          "",
}

// CompileRegularExpression compiles an expression from an analyzer
// definition file, translating the declared flag names into inline
// flags. Unknown flag names are a configuration error.
func CompileRegularExpression(expression string, flags []string) (
	*regexp.Regexp, error) {
	if expression == "" {
		return nil, ConfigErrorf("empty regular expression")
	}

	inline := ""
	for _, flag := range flags {
		name := strings.TrimPrefix(strings.ToUpper(
			strings.TrimSpace(flag)), "RE.")
		translated, pres := regex_flag_map[name]
		if !pres {
			return nil, ConfigErrorf(
				"unsupported regular expression flag %q", flag)
		}
		if translated != "" &&
			!strings.Contains(inline, translated) {
			inline += translated
		}
	}

	if inline != "" {
		expression = "(?" + inline + ")" + expression
	}

	compiled, err := regexp.Compile(expression)
	if err != nil {
		return nil, ConfigErrorf("unable to compile %q: %v",
			expression, err)
	}
	return compiled, nil
}

// GetDomain extracts the fully qualified domain from a URL, without
// scheme, path or port.
func GetDomain(url string) string {
	domain := url
	idx := strings.Index(domain, "://")
	if idx >= 0 {
		domain = domain[idx+3:]
	}
	idx = strings.IndexAny(domain, "/?#")
	if idx >= 0 {
		domain = domain[:idx]
	}
	idx = strings.Index(domain, "@")
	if idx >= 0 {
		domain = domain[idx+1:]
	}
	idx = strings.Index(domain, ":")
	if idx >= 0 {
		domain = domain[:idx]
	}
	return strings.ToLower(strings.TrimSuffix(domain, "."))
}

// GetTLD returns the merged top level domain, eg the registered
// domain plus its public suffix ("github.io" style suffixes count as
// one suffix).
func GetTLD(url string) string {
	domain := GetDomain(url)
	if domain == "" {
		return ""
	}
	tld, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		// Not a registrable name, fall back to the last two
		// labels.
		parts := strings.Split(domain, ".")
		if len(parts) > 2 {
			return strings.Join(parts[len(parts)-2:], ".")
		}
		return domain
	}
	return tld
}

// StripWWW removes a leading www. prefix from a domain.
func StripWWW(domain string) string {
	return strings.TrimPrefix(domain, "www.")
}
