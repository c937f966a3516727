// Package scan samples a place's rank across a geographic grid and persists
// the outcome.
//
// A rank is the 1-based position of the target place inside one location-biased
// text-search result page. It is not an organic search engine position.
//
// Grid points of one scan are sampled with bounded concurrency. Places of a
// batch are scanned strictly one after another so a batch never multiplies
// pressure on the shared search quota.
package scan
