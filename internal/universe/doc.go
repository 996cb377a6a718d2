// Package universe loads the static ticker universe and partitions it into
// fixed-size chunks for the batch orchestrator.
//
// The source is a flat file, one symbol per line, read once at run start.
package universe
