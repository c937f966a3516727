// Package gridrank holds the shared domain model of the grid scanner: scan and
// place types, the ports implemented by providers and stores, and the error
// classes used across layers.
//
// A "rank" throughout this module is the 1-based position of a place inside a
// single location-biased text-search result page. It is not an organic search
// engine position.
package gridrank
