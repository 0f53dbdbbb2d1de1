package pipeline

import "strings"

// normalizedTeamName lowercases the team name, then collapses each maximal
// run of whitespace to a single '-'. Used
// as the container name, the image repo component, and the network alias —
// the one canonical name a team's project is known by.
func normalizedTeamName(name string) string {
	lower := strings.ToLower(name)
	fields := strings.Fields(lower)
	return strings.Join(fields, "-")
}
