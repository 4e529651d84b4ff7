// Package clock provides the logical round counter nodes use to timestamp
// their critical-section bids. The host advances the counter once per round
// and merges timestamps observed on inbound requests, Lamport style.
package clock
