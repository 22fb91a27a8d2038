// Package ebird provides a client for interacting with the eBird API v2
package ebird

import "time"

// Observation is one row of the eBird "recent observations" endpoints.
// HowMany is nil when the observer reported presence only ("X").
type Observation struct {
	SpeciesCode     string  `json:"speciesCode"`
	CommonName      string  `json:"comName"`
	ScientificName  string  `json:"sciName"`
	LocID           string  `json:"locId"`
	LocName         string  `json:"locName"`
	ObsDt           string  `json:"obsDt"` // "2006-01-02 15:04" or "2006-01-02"
	HowMany         *int    `json:"howMany,omitempty"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	ObsValid        bool    `json:"obsValid"`
	ObsReviewed     bool    `json:"obsReviewed"`
	LocationPrivate bool    `json:"locationPrivate"`
	SubID           string  `json:"subId"`
}

// ObservationQuery holds the optional query parameters of the recent observations endpoint
type ObservationQuery struct {
	Back               int  // days back to fetch, 1-30; 0 uses the API default of 14
	IncludeProvisional bool // include observations not yet reviewed
	HotspotsOnly       bool // only observations at hotspots
}

// TaxonomyEntry represents a single entry from the eBird taxonomy
type TaxonomyEntry struct {
	ScientificName string   `json:"sciName"`
	CommonName     string   `json:"comName"`
	SpeciesCode    string   `json:"speciesCode"`
	Category       string   `json:"category"`   // species, spuh, slash, hybrid, etc.
	TaxonOrder     float64  `json:"taxonOrder"` // For sorting in taxonomic order
	BandingCodes   []string `json:"bandingCodes"`
	Order          string   `json:"order"`
	FamilyCode     string   `json:"familyCode"`
	FamilyComName  string   `json:"familyComName"`
	FamilySciName  string   `json:"familySciName"`
	ReportAs       string   `json:"reportAs,omitempty"` // Species to report as (for subspecies)
}

// Config holds configuration for the eBird client
type Config struct {
	APIKey      string        `json:"api_key"`
	BaseURL     string        `json:"base_url"`
	Timeout     time.Duration `json:"timeout"`
	CacheTTL    time.Duration `json:"cache_ttl"`
	RateLimitMS int           `json:"rate_limit_ms"` // Milliseconds between requests
	Debug       bool          `json:"debug"`
}

// Error represents an eBird API error response
type Error struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	return e.Detail
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.ebird.org/v2",
		Timeout:     30 * time.Second,
		CacheTTL:    24 * time.Hour, // Taxonomy rarely changes
		RateLimitMS: 100,            // 10 requests per second max
	}
}
