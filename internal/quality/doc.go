// Package quality decides whether a scored item advances, and runs the
// deepening state machine for items that scored too low.
//
// Gate compares a score against a stage threshold; the advance side is
// inclusive. Items below the threshold enter the deepening queue, where
// DeepeningHandler re-attempts them one strategy per round. A run of rounds
// with no new data, or too many full passes over the strategy list, ends in
// exhaustion, which is a terminal classification and not an error.
package quality
