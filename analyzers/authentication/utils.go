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

// Package authentication implements brute force detection over SSH
// and Windows logon events. Events are collected into an in-memory
// frame and scanned with a sliding window anchored on each successful
// login.
package authentication

import (
	"fmt"
	"strings"
	"time"

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/tabular"
)

const (
	// Seconds before a successful login that are searched for failed
	// attempts.
	default_brute_force_window = 3600

	// Minimum failed logins inside the window to call it brute force.
	default_min_failed_events = 20

	// Session durations at least this long count as interactive
	// attacker access and raise the result priority.
	default_min_access_window = 300

	top_value_count = 10
)

var required_columns = []string{
	"timestamp", "source_ip", "source_port", "username", "domain",
	"authentication_method", "authentication_result", "session_id",
}

func humanTimestamp(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format("2006-01-02T15:04:05Z")
}

// LoginRecord captures one successful login.
type LoginRecord struct {
	Timestamp       int64
	SessionID       string
	SessionDuration int64
	SourceIP        string
	SourcePort      int64
	Username        string
	Domain          string
	SourceHostname  string
}

func (self *LoginRecord) toDict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("timestamp", self.Timestamp).
		Set("session_id", self.SessionID).
		Set("session_duration", self.SessionDuration).
		Set("source_ip", self.SourceIP).
		Set("source_port", self.SourcePort).
		Set("username", self.Username).
		Set("domain", self.Domain).
		Set("source_hostname", self.SourceHostname)
}

// AuthSummary is the per-IP authentication report, including the
// logins that qualified as brute force.
type AuthSummary struct {
	SummaryType string
	SourceIP    string
	Username    string
	Domain      string

	FirstSeen int64
	LastSeen  int64

	FirstAuth        *LoginRecord
	SuccessfulLogins []*LoginRecord
	SuccessSourceIPs []string
	SuccessUsernames []string

	DistinctSourceIPCount int
	DistinctUsernameCount int
	TotalSuccessEvents    int
	TotalFailedEvents     int

	TopSourceIPs *ordereddict.Dict
	TopUsernames *ordereddict.Dict

	// The successful logins preceded by enough failures.
	BruteForceLogins []*LoginRecord
}

func (self *AuthSummary) ToDict() *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("summary_type", self.SummaryType).
		Set("source_ip", self.SourceIP).
		Set("username", self.Username).
		Set("domain", self.Domain).
		Set("first_seen", self.FirstSeen).
		Set("last_seen", self.LastSeen)

	if self.FirstAuth != nil {
		result.Set("first_auth", self.FirstAuth.toDict())
	}

	logins := []*ordereddict.Dict{}
	for _, login := range self.SuccessfulLogins {
		logins = append(logins, login.toDict())
	}

	result.Set("successful_logins", logins).
		Set("success_source_ips", self.SuccessSourceIPs).
		Set("success_usernames", self.SuccessUsernames).
		Set("distinct_source_ip_count", self.DistinctSourceIPCount).
		Set("distinct_username_count", self.DistinctUsernameCount).
		Set("total_success_events", self.TotalSuccessEvents).
		Set("total_failed_events", self.TotalFailedEvents).
		Set("top_source_ips", self.TopSourceIPs).
		Set("top_usernames", self.TopUsernames)

	bruteforce := []*ordereddict.Dict{}
	for _, login := range self.BruteForceLogins {
		bruteforce = append(bruteforce, login.toDict())
	}
	result.Set("summary", ordereddict.NewDict().
		Set("bruteforce", bruteforce))

	return result
}

// BruteForceUtils holds the authentication frame and the thresholds
// used to scan it.
type BruteForceUtils struct {
	frame *tabular.Frame

	success_threshold int
	window            int64
	min_failed        int
	min_access_window int64
}

func NewBruteForceUtils(
	window int64, min_failed int,
	min_access_window int64) *BruteForceUtils {

	if window <= 0 {
		window = default_brute_force_window
	}
	if min_failed <= 0 {
		min_failed = default_min_failed_events
	}
	if min_access_window <= 0 {
		min_access_window = default_min_access_window
	}

	return &BruteForceUtils{
		success_threshold: 1,
		window:            window,
		min_failed:        min_failed,
		min_access_window: min_access_window,
	}
}

func (self *BruteForceUtils) SetSuccessThreshold(threshold int) {
	if threshold > 0 {
		self.success_threshold = threshold
	}
}

// SetFrame installs the authentication events after checking the
// required columns are present. Rows are sorted by timestamp.
func (self *BruteForceUtils) SetFrame(frame *tabular.Frame) error {
	columns := make(map[string]bool)
	for _, column := range frame.Columns() {
		columns[column] = true
	}

	missing := []string{}
	for _, column := range required_columns {
		if !columns[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf(
			"authentication frame is missing columns: %v",
			strings.Join(missing, ", "))
	}

	self.frame = frame.SortBy("timestamp", true)
	return nil
}

func (self *BruteForceUtils) cell(column string, idx int) string {
	return tabular.AsString(self.frame.Get(column, idx))
}

func (self *BruteForceUtils) cellInt(column string, idx int) int64 {
	value, _ := tabular.AsInt64(self.frame.Get(column, idx))
	return value
}

// sessionDuration matches a successful login to the next
// disconnection record with the same session ID. Returns -1 when no
// pair is found.
func (self *BruteForceUtils) sessionDuration(
	session_id string, timestamp int64) int64 {

	if session_id == "" || timestamp == 0 || self.frame == nil {
		return -1
	}

	session_start := int64(-1)
	session_end := int64(-1)

	for i := 0; i < self.frame.Len(); i++ {
		if self.cell("session_id", i) != session_id {
			continue
		}

		row_ts := self.cellInt("timestamp", i)
		if row_ts < timestamp {
			continue
		}

		if session_start < 0 &&
			self.cell("authentication_result", i) == "success" {
			session_start = row_ts
		}
		if session_end < 0 &&
			self.cell("event_type", i) == "disconnection" {
			session_end = row_ts
		}
	}

	if session_start < 0 || session_end < 0 {
		return -1
	}
	return session_end - session_start
}

// loginRecord builds the LoginRecord for a successful login keyed by
// source IP and session ID.
func (self *BruteForceUtils) loginRecord(
	source_ip, session_id, username, domain string) *LoginRecord {

	if self.frame == nil {
		return nil
	}

	login_idx := -1
	logoff_ts := int64(-1)

	for i := 0; i < self.frame.Len(); i++ {
		if self.cell("source_ip", i) != source_ip ||
			self.cell("session_id", i) != session_id ||
			self.cell("username", i) != username ||
			self.cell("domain", i) != domain {
			continue
		}

		if login_idx < 0 &&
			self.cell("authentication_result", i) == "success" {
			login_idx = i
		}
		if logoff_ts < 0 &&
			self.cell("event_type", i) == "disconnection" {
			logoff_ts = self.cellInt("timestamp", i)
		}
	}

	if login_idx < 0 {
		return nil
	}

	record := &LoginRecord{
		Timestamp:  self.cellInt("timestamp", login_idx),
		SessionID:  session_id,
		SourceIP:   source_ip,
		SourcePort: self.cellInt("source_port", login_idx),
		Username:   username,
		Domain:     domain,
	}

	if logoff_ts > 0 {
		record.SessionDuration = logoff_ts - record.Timestamp
	} else {
		record.SessionDuration = -1
	}

	return record
}

func topCounts(counts []tabular.ValueCount) *ordereddict.Dict {
	result := ordereddict.NewDict()
	for i, item := range counts {
		if i >= top_value_count {
			break
		}
		result.Set(item.Value, item.Count)
	}
	return result
}

// ipSummary builds the full AuthSummary for one source IP.
func (self *BruteForceUtils) ipSummary(source_ip string) *AuthSummary {
	if self.frame == nil {
		return nil
	}

	ip_frame := self.frame.Filter(func(idx int) bool {
		return self.cell("source_ip", idx) == source_ip
	})
	if ip_frame.Len() == 0 {
		return nil
	}

	summary := &AuthSummary{
		SummaryType: "source_ip",
		SourceIP:    source_ip,
	}

	first_ts, _ := tabular.AsInt64(ip_frame.Get("timestamp", 0))
	last_ts, _ := tabular.AsInt64(
		ip_frame.Get("timestamp", ip_frame.Len()-1))
	summary.FirstSeen = first_ts
	summary.LastSeen = last_ts

	success_ips := make(map[string]bool)
	success_users := make(map[string]bool)

	for i := 0; i < ip_frame.Len(); i++ {
		result := tabular.AsString(
			ip_frame.Get("authentication_result", i))
		switch result {
		case "failure":
			summary.TotalFailedEvents++
			continue
		case "success":
		default:
			continue
		}

		summary.TotalSuccessEvents++

		session_id := tabular.AsString(ip_frame.Get("session_id", i))
		username := tabular.AsString(ip_frame.Get("username", i))
		row_ts, _ := tabular.AsInt64(ip_frame.Get("timestamp", i))
		port, _ := tabular.AsInt64(ip_frame.Get("source_port", i))

		record := &LoginRecord{
			Timestamp:  row_ts,
			SessionID:  session_id,
			SourceIP:   source_ip,
			SourcePort: port,
			Username:   username,
			Domain:     tabular.AsString(ip_frame.Get("domain", i)),
			SessionDuration: self.sessionDuration(
				session_id, row_ts),
		}
		summary.SuccessfulLogins = append(
			summary.SuccessfulLogins, record)
		if summary.FirstAuth == nil {
			summary.FirstAuth = record
		}

		success_ips[source_ip] = true
		success_users[username] = true
	}

	for ip := range success_ips {
		summary.SuccessSourceIPs = append(
			summary.SuccessSourceIPs, ip)
	}
	for user := range success_users {
		summary.SuccessUsernames = append(
			summary.SuccessUsernames, user)
	}

	summary.DistinctSourceIPCount = len(ip_frame.Unique("source_ip"))
	summary.DistinctUsernameCount = len(ip_frame.Unique("username"))
	summary.TopSourceIPs = topCounts(ip_frame.GroupCount("source_ip"))
	summary.TopUsernames = topCounts(ip_frame.GroupCount("username"))

	return summary
}

// ipBruteForceCheck scans the window before each successful login
// from the IP and returns its AuthSummary when the failure threshold
// was crossed.
func (self *BruteForceUtils) ipBruteForceCheck(
	source_ip string) *AuthSummary {

	if source_ip == "" || self.frame == nil {
		return nil
	}

	bruteforce_logins := []*LoginRecord{}

	for i := 0; i < self.frame.Len(); i++ {
		if self.cell("source_ip", i) != source_ip ||
			self.cell("authentication_result", i) != "success" {
			continue
		}

		login_ts := self.cellInt("timestamp", i)
		if login_ts == 0 {
			continue
		}

		window_start := login_ts - self.window

		failure_count := 0
		success_count := 0
		for j := 0; j < self.frame.Len(); j++ {
			if self.cell("source_ip", j) != source_ip {
				continue
			}
			row_ts := self.cellInt("timestamp", j)
			if row_ts < window_start || row_ts > login_ts {
				continue
			}
			switch self.cell("authentication_result", j) {
			case "failure":
				failure_count++
			case "success":
				success_count++
			}
		}

		if success_count > 0 &&
			success_count <= self.success_threshold &&
			failure_count >= self.min_failed {
			login := self.loginRecord(source_ip,
				self.cell("session_id", i),
				self.cell("username", i),
				self.cell("domain", i))
			if login != nil {
				login.SourceHostname = self.cell(
					"source_hostname", i)
				bruteforce_logins = append(
					bruteforce_logins, login)
			}
		}
	}

	if len(bruteforce_logins) == 0 {
		return nil
	}

	summary := self.ipSummary(source_ip)
	if summary == nil {
		return nil
	}
	summary.BruteForceLogins = bruteforce_logins
	return summary
}

// Analyze runs the brute force scan over every IP with at least one
// successful login and fills in the analyzer output.
func (self *BruteForceUtils) Analyze(
	output *analyzers.Output) []*AuthSummary {

	summaries := []*AuthSummary{}

	if self.frame == nil || self.frame.Len() == 0 {
		return summaries
	}

	success_frame := self.frame.Filter(func(idx int) bool {
		return self.cell("authentication_result", idx) == "success"
	})

	for _, source_ip := range success_frame.Unique("source_ip") {
		summary := self.ipBruteForceCheck(source_ip)
		if summary != nil {
			summaries = append(summaries, summary)
		}
	}

	self.fillOutput(output, summaries)
	return summaries
}

func (self *BruteForceUtils) fillOutput(
	output *analyzers.Output, summaries []*AuthSummary) {

	if len(summaries) == 0 {
		output.ResultStatus = "SUCCESS"
		output.ResultSummary = "No bruteforce activity"
		output.ResultMarkdown =
			"\n### Brute Force Analyzer\nBrute force not detected"
		return
	}

	result_parts := []string{}
	markdown := []string{"\n### Brute Force Analyzer"}
	attributes := []*ordereddict.Dict{}

	for _, summary := range summaries {
		result_parts = append(result_parts, fmt.Sprintf(
			"%d brute force from %s",
			len(summary.BruteForceLogins), summary.SourceIP))

		markdown = append(markdown, fmt.Sprintf(
			"\n### Brute Force Summary for %s", summary.SourceIP))
		for _, login := range summary.BruteForceLogins {
			if login.SessionDuration >= self.min_access_window {
				output.SetPriority("HIGH")
				markdown = append(markdown, fmt.Sprintf(
					"\n- Potentially actor activity - long active"+
						" session %d seconds",
					login.SessionDuration))
			}
			markdown = append(markdown, fmt.Sprintf(
				"- Successful brute force on %s as %s",
				humanTimestamp(login.Timestamp), login.Username))
		}

		markdown = append(markdown, fmt.Sprintf(
			"\n#### %s Summary", summary.SourceIP))
		markdown = append(markdown, fmt.Sprintf(
			"- IP first seen on %s",
			humanTimestamp(summary.FirstSeen)))
		markdown = append(markdown, fmt.Sprintf(
			"- IP last seen on %s",
			humanTimestamp(summary.LastSeen)))

		if summary.FirstAuth != nil {
			markdown = append(markdown, fmt.Sprintf(
				"- First successful authentication on %s",
				humanTimestamp(summary.FirstAuth.Timestamp)))
			markdown = append(markdown, fmt.Sprintf(
				"- First successful login from %s",
				summary.FirstAuth.SourceIP))
			markdown = append(markdown, fmt.Sprintf(
				"- First successful login as %s",
				summary.FirstAuth.Username))
		}

		if summary.TopUsernames != nil &&
			len(summary.TopUsernames.Keys()) > 0 {
			markdown = append(markdown, "\n#### Top Usernames")
			for _, username := range summary.TopUsernames.Keys() {
				count, _ := summary.TopUsernames.Get(username)
				markdown = append(markdown, fmt.Sprintf(
					"- %s: %v", username, count))
			}
		}

		attributes = append(attributes, summary.ToDict())
	}

	output.ResultStatus = "SUCCESS"
	output.ResultSummary = strings.Join(result_parts, ", ")
	output.ResultMarkdown = strings.Join(markdown, "\n")
	output.ResultAttributes = ordereddict.NewDict().
		Set("bruteforce", attributes)
}
