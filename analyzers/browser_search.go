/*
Timesketch Analyzer Engine - Collaborative Forensic Timelines
Copyright (C) 2026 Timesketch Authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package analyzers

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/emojis"
)

type searchEngine struct {
	name string
	re   *regexp.Regexp

	// Either the query parameter holding the search string, or empty
	// when the search string is a path segment after "search/".
	param string
}

// Order matters here, the first matching engine wins. The generic
// Google entry comes after the specific Google products.
var search_engines = []searchEngine{
	{"Bing", regexp.MustCompile(`bing\.com/search`), "q"},
	{"DuckDuckGo", regexp.MustCompile(`duckduckgo\.com`), "q"},
	{"GMail", regexp.MustCompile(`mail\.google\.com`), ""},
	{"Google Docs", regexp.MustCompile(`docs\.google\.com`), "q"},
	{"Google Drive", regexp.MustCompile(`drive\.google\.com/drive/search`), "q"},
	{"Google Groups", regexp.MustCompile(`groups\.google\.com/a`), ""},
	{"Google Inbox", regexp.MustCompile(`inbox\.google\.com`), ""},
	{"Google Sites", regexp.MustCompile(`sites\.google\.com/site`), "q"},
	{"Google Search",
		regexp.MustCompile(`(www\.|[a-zA-Z]\.|/)google\.[a-zA-Z]+/search`), "q"},
	{"Yahoo", regexp.MustCompile(`search\.yahoo\.com/search`), "p"},
	{"Yandex", regexp.MustCompile(`yandex\.(com|ru)/search`), "text"},
	{"Youtube", regexp.MustCompile(`youtube\.com`), "search_query"},
}

// extractSearchQuery pulls a query parameter out of a URL. Plus signs
// and percent escapes are decoded.
func extractSearchQuery(raw_url, param string) string {
	idx := strings.Index(raw_url, "?")
	if idx < 0 {
		return ""
	}
	values, err := url.ParseQuery(raw_url[idx+1:])
	if err != nil {
		return ""
	}
	return values.Get(param)
}

// extractURLPartQuery handles products that encode the search string
// as a path segment after "search/".
func extractURLPartQuery(raw_url string) string {
	idx := strings.Index(raw_url, "search/")
	if idx < 0 {
		return ""
	}
	segment := raw_url[idx+len("search/"):]
	end := strings.IndexAny(segment, "/?#&")
	if end >= 0 {
		segment = segment[:end]
	}
	decoded, err := url.QueryUnescape(segment)
	if err != nil {
		return segment
	}
	return strings.ReplaceAll(decoded, "+", " ")
}

// BrowserSearchSketchPlugin extracts the search terms from browser
// history URLs of the major search engines.
type BrowserSearchSketchPlugin struct{}

func (self *BrowserSearchSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "browser_search",
		DisplayName: "BrowserSearch",
		Description: "Extract search terms from known search engine URLs",
	}
}

func (self *BrowserSearchSketchPlugin) Run(runtime *Runtime) (
	string, error) {

	count := 0
	err := runtime.EventStream(&StreamOptions{
		QueryString:  `url:*`,
		ReturnFields: []string{"url"},
	}, func(event *Event) error {
		raw_url := event.GetString("url")
		if raw_url == "" {
			return nil
		}

		for _, engine := range search_engines {
			if !engine.re.MatchString(raw_url) {
				continue
			}

			var search_string string
			if engine.param == "" {
				search_string = extractURLPartQuery(raw_url)
			} else {
				search_string = extractSearchQuery(
					raw_url, engine.param)
			}
			if search_string == "" {
				return nil
			}

			count++
			event.AddAttributes(ordereddict.NewDict().
				Set("search_string", search_string))
			event.AddHumanReadable(fmt.Sprintf(
				"%s search query: %s",
				engine.name, search_string), false)
			event.AddTags([]string{"browser_search"})
			event.AddEmojis([]string{
				emojis.GetEmoji("MAGNIFYING_GLASS")})
			return event.Commit()
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if count > 0 {
		sketch := runtime.GetSketch()
		_, err = sketch.AddView(
			"Browser searches", `tag:"browser_search"`, "", "")
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("Browser searches found: %d", count), nil
}

func init() {
	MustRegister(&BrowserSearchSketchPlugin{})
}
