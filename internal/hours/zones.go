package hours

import "time"

// legacyZones maps abbreviated zone codes that still appear in upstream
// metadata to IANA identifiers. Abbreviations are ambiguous fixed offsets;
// mapping to a real zone keeps DST transitions correct.
var legacyZones = map[string]string{
	"EST":  "America/New_York",
	"EDT":  "America/New_York",
	"CST":  "America/Chicago",
	"CDT":  "America/Chicago",
	"MST":  "America/Denver",
	"MDT":  "America/Denver",
	"PST":  "America/Los_Angeles",
	"PDT":  "America/Los_Angeles",
	"GMT":  "Europe/London",
	"BST":  "Europe/London",
	"MET":  "Europe/Berlin",
	"CET":  "Europe/Berlin",
	"CEST": "Europe/Berlin",
	"JST":  "Asia/Tokyo",
	"HKT":  "Asia/Hong_Kong",
	"SGT":  "Asia/Singapore",
	"AEST": "Australia/Sydney",
	"IST":  "Asia/Kolkata",
}

// loadZone resolves a timezone identifier, normalizing legacy abbreviations
// to full IANA names first.
func loadZone(id string) (*time.Location, error) {
	if iana, ok := legacyZones[id]; ok {
		id = iana
	}
	return time.LoadLocation(id)
}
