// Package vector defines the pluggable vector-index capability and provides
// a brute-force in-memory implementation. Persistent deployments can swap in
// the sqlite-vec backed index from the sqlite package without touching
// engine logic.
package vector
