// Package address derives the storage locations of counters and receipts.
//
// Locations are name-based UUIDs (version 5) under a fixed seed namespace, so
// the same inputs always land on the same key. A second counter for one admin,
// or a second receipt for one (counter, principal) pair, collides with the
// first at insert time.
package address

import (
	"github.com/google/uuid"
)

// Seed is the namespace every address is derived under.
var Seed = uuid.MustParse("6f1e0c2a-5b7d-4c1e-9a3f-2d8b4e6a7c90")

const (
	counterTag = "counter"
	receiptTag = "receipt"
)

// Counter returns the address of the counter owned by admin.
func Counter(admin string) string {
	return derive(counterTag, admin)
}

// Receipt returns the address of principal's receipt on counterID.
func Receipt(counterID, principal string) string {
	return derive(receiptTag, counterID, principal)
}

// derive joins parts with NUL separators so ("ab","c") and ("a","bc") differ.
func derive(tag string, parts ...string) string {
	n := len(tag)
	for _, p := range parts {
		n += 1 + len(p)
	}
	buf := make([]byte, 0, n)
	buf = append(buf, tag...)
	for _, p := range parts {
		buf = append(buf, 0)
		buf = append(buf, p...)
	}
	return uuid.NewSHA1(Seed, buf).String()
}
