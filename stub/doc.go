// Package stub provides interfaces and stub implementations.
//
// Packages orgdomain, pslfetch and pslupdate declare their metrics with these
// interfaces, so orgdomain and pslfetch can be reused without the prometheus
// dependency. The regdomain command sets prometheus implementations at
// startup.
package stub
