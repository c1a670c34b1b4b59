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
	"strings"

	"www.timesketch.org/golang/timesketch/emojis"
	"www.timesketch.org/golang/timesketch/similarity"
)

// Seed of domains that are popular targets for typo squatting. The
// operator configured watch list and the most frequent domains of the
// sketch are added on top of these.
var watched_domains_seed = []string{
	"google.com",
	"youtube.com",
	"facebook.com",
	"wikipedia.org",
	"amazon.com",
	"twitter.com",
	"instagram.com",
	"microsoft.com",
	"live.com",
	"office.com",
	"apple.com",
	"linkedin.com",
	"netflix.com",
	"paypal.com",
	"dropbox.com",
	"github.com",
	"adobe.com",
	"yahoo.com",
	"ebay.com",
	"spotify.com",
}

// PhishyDomainsSketchPlugin compares every seen domain against a
// watched set of high value domains and flags lookalikes.
type PhishyDomainsSketchPlugin struct{}

func (self *PhishyDomainsSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "phishy_domains",
		DisplayName: "PhishyDomains",
		Description: "Flag domains that look similar to watched domains",
		Depends:     []string{"domain"},
	}
}

// domainCore is the part of the domain that is compared: everything
// up to the public suffix, without a www prefix.
func domainCore(domain string) string {
	core := StripWWW(domain)
	suffix := GetTLD(core)
	if suffix != "" {
		idx := strings.Index(suffix, ".")
		if idx > 0 {
			// Drop only the registry suffix, keep the registered
			// label and any subdomains for comparison.
			core = strings.TrimSuffix(core, suffix[idx:])
		}
	}
	return core
}

type watchedDomain struct {
	domain string
	core   string
	hash   *similarity.MinHash
}

func makeWatched(domain string) *watchedDomain {
	core := domainCore(domain)
	return &watchedDomain{
		domain: strings.ToLower(domain),
		core:   core,
		hash: similarity.MinHashFromCharacters(
			core, similarity.DefaultPermutations),
	}
}

func (self *PhishyDomainsSketchPlugin) Run(runtime *Runtime) (
	string, error) {

	analyzers_config := runtime.Config.Analyzers

	domain_events := make(map[string][]*Event)
	err := runtime.EventStream(&StreamOptions{
		QueryDSL:     domain_query_dsl,
		ReturnFields: []string{"url", "domain"},
	}, func(event *Event) error {
		domain := eventDomain(event)
		if domain == "" {
			return nil
		}
		domain_events[domain] = append(domain_events[domain], event)
		return nil
	})
	if err != nil {
		return "", err
	}

	threshold := analyzers_config.DomainWatchedThreshold
	if threshold <= 0 {
		threshold = 10
	}

	watched := make(map[string]*watchedDomain)
	addWatched := func(domain string) {
		domain = strings.ToLower(StripWWW(domain))
		if domain == "" {
			return
		}
		_, pres := watched[domain]
		if !pres {
			watched[domain] = makeWatched(domain)
		}
	}

	for _, domain := range watched_domains_seed {
		addWatched(domain)
	}
	for _, domain := range analyzers_config.DomainWatchedDomains {
		addWatched(domain)
	}

	// Domains frequent within this sketch are presumed legitimate
	// and join the watched set.
	for domain, events := range domain_events {
		if len(events) >= threshold {
			addWatched(domain)
		}
	}

	excluded := make(map[string]bool)
	for _, domain := range analyzers_config.DomainExcludeDomains {
		excluded[strings.ToLower(domain)] = true
	}

	score_threshold := analyzers_config.DomainWatchedScoreThreshold
	if score_threshold <= 0 {
		score_threshold = 0.75
	}

	phishy_count := 0
	for domain, events := range domain_events {
		stripped := StripWWW(domain)
		if excluded[stripped] {
			continue
		}

		// Watched domains themselves are legitimate.
		_, pres := watched[stripped]
		if pres {
			for _, event := range events {
				event.AddTags([]string{"known-domain"})
				err := event.Commit()
				if err != nil {
					return "", err
				}
			}
			continue
		}

		core := domainCore(domain)
		if core == "" {
			continue
		}
		hash := similarity.MinHashFromCharacters(
			core, similarity.DefaultPermutations)

		matched := ""
		for _, candidate := range watched {
			score := hash.Jaccard(candidate.hash)
			if score < score_threshold {
				continue
			}

			shorter := len(core)
			if len(candidate.core) < shorter {
				shorter = len(candidate.core)
			}
			lcs := similarity.LongestCommonSubstring(
				core, candidate.core)
			if lcs*2 < shorter {
				continue
			}
			matched = candidate.domain
			break
		}

		if matched == "" {
			continue
		}

		phishy_count++
		for _, event := range events {
			event.AddTags([]string{"phishy-domain"})
			event.AddEmojis([]string{
				emojis.GetEmoji("FISHING_POLE")})
			event.AddHumanReadable(fmt.Sprintf(
				"Domain %s is similar to watched domain %s",
				domain, matched), false)
			err := event.Commit()
			if err != nil {
				return "", err
			}
		}
	}

	if phishy_count > 0 {
		runtime.Output.SetPriority("MEDIUM")
		sketch := runtime.GetSketch()
		_, err = sketch.AddView(
			"Phishy domains", `tag:"phishy-domain"`, "", "")
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf(
		"%d potentially phishy domains discovered.", phishy_count), nil
}

func init() {
	MustRegister(&PhishyDomainsSketchPlugin{})
}
