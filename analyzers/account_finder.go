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
	"sort"
	"strings"

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/emojis"
)

// Windows security log identifiers for local account management.
const (
	account_created_identifier = 4720
	account_enabled_identifier = 4722
	account_deleted_identifier = 4726
)

// AccountFinderSketchPlugin surfaces account creation and deletion
// events and collects the account names involved.
type AccountFinderSketchPlugin struct{}

func (self *AccountFinderSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:              "account_finder",
		DisplayName:       "AccountFinder",
		Description:       "Find account creation and deletion events",
		RequiredDataTypes: []string{"windows:evtx:record"},
	}
}

func (self *AccountFinderSketchPlugin) Run(runtime *Runtime) (
	string, error) {

	query := fmt.Sprintf(
		`data_type:"windows:evtx:record" AND event_identifier:(%d OR %d OR %d)`,
		account_created_identifier,
		account_enabled_identifier,
		account_deleted_identifier)

	accounts := make(map[string]bool)
	count := 0

	err := runtime.EventStream(&StreamOptions{
		QueryString: query,
		ReturnFields: []string{
			"event_identifier", "xml_string", "username"},
	}, func(event *Event) error {
		count++

		data := evtxDataValues(event.GetString("xml_string"))
		account := data["TargetUserName"]
		if account == "" {
			account = event.GetString("username")
		}

		tags := []string{"account-activity"}
		identifier, _ := event.Get("event_identifier")
		switch fmt.Sprintf("%v", identifier) {
		case "4720":
			tags = append(tags, "created-account")
		case "4726":
			tags = append(tags, "deleted-account")
		}

		event.AddTags(tags)
		event.AddEmojis([]string{emojis.GetEmoji("ID_BUTTON")})
		if account != "" {
			accounts[account] = true
			event.AddAttributes(ordereddict.NewDict().
				Set("found_account", account))
			event.AddHumanReadable(fmt.Sprintf(
				"Account activity for %s", account), false)
		}
		return event.Commit()
	})
	if err != nil {
		return "", err
	}

	if count == 0 {
		return "No account activity found.", nil
	}

	names := []string{}
	for account := range accounts {
		names = append(names, account)
	}
	sort.Strings(names)

	sketch := runtime.GetSketch()
	_, err = sketch.AddView(
		"Account activity", `tag:"account-activity"`, "", "")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"%d account management events found for accounts: %s",
		count, strings.Join(names, ", ")), nil
}

func init() {
	MustRegister(&AccountFinderSketchPlugin{})
}
