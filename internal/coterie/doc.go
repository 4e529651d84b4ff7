// Package coterie builds the fixed voting sets used by the mutual exclusion
// engine. A coterie layout is valid when every two coteries intersect, which
// is what keeps two nodes from collecting all their votes at once.
package coterie
