// Package constants defines shared constants for the sundial application.
package constants

// MaxFeedBytes caps how much of an ICS feed body is read. Canvas
// exports for a full academic year stay well under this; anything
// larger is a misbehaving endpoint.
const MaxFeedBytes = 10 << 20

// ListHorizonDays is the default look-ahead window for the merged
// calendar view when the caller does not specify one.
const ListHorizonDays = 90
