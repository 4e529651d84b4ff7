// Package sim runs protocol engines against an in-memory network driven in
// discrete rounds. Delivery order across links is shuffled by a seeded
// random source while each directed link stays FIFO, so runs are
// reproducible. A Monitor records every critical-section entry and flags
// overlaps.
package sim
