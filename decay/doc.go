// Package decay models memory retention with an exponential forgetting
// curve.
//
// Each note carries a retention record (strength, last touch, retrieval
// count). Retention at time t is exp(-dt_days/strength); when it falls below
// the archive threshold the note transitions, one-way, from active to
// archived. Successful retrievals reinforce the record, multiplying strength
// by (1 + quality) so frequently-used memories survive longer gaps.
//
// Retention is always computed fresh and never cached, which keeps reads
// consistent regardless of how long a record sat untouched. Archival checks
// may run lazily at read time or eagerly in a periodic sweep; lazy checking
// is the correctness baseline and the sweep is an optimization.
package decay
