// Package rank holds the domain model of the rank-tracking engine: job
// records and their lifecycle, provider task results, keyword output
// records, and the domain-matching rules. Subsystems depend on the ports
// declared here rather than on each other.
package rank
