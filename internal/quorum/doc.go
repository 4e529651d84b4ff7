// Package quorum provides fan-out helpers that contact a set of members in
// parallel and decide whether enough of them answered.
package quorum
