// Package models defines the record types flowing through the pipeline.
package models

import "time"

// RawBook is one catalog row as delivered by the scraper, before any
// validation. Every field is the raw text captured from the page.
type RawBook struct {
	Title        string `csv:"title" json:"title"`
	Price        string `csv:"price" json:"price"`
	Rating       string `csv:"rating" json:"rating"`
	Category     string `csv:"category" json:"category"`
	Availability string `csv:"availability" json:"availability"`
	Stock        string `csv:"stock" json:"stock"`
	Image        string `csv:"image" json:"image"`
	ProductPage  string `csv:"product_page" json:"product_page"`
}

// Book is the canonical processed record. After cleaning no field is empty,
// rating is within 1..5 and the ID is unique within the dataset.
type Book struct {
	ID           string  `csv:"id" json:"id"`
	Title        string  `csv:"title" json:"title"`
	Price        float64 `csv:"price" json:"price"`
	Rating       int     `csv:"rating" json:"rating"`
	Category     string  `csv:"category" json:"category"`
	Availability bool    `csv:"availability" json:"availability"`
	Stock        int     `csv:"stock" json:"stock"`
	Image        string  `csv:"image" json:"image"`
	ProductPage  string  `csv:"product_page" json:"product_page"`
}

// PriceRange buckets a price into an ordinal band.
//
// Boundary semantics (pinned by tests): below 20 is Low, 20 through 40
// inclusive is Medium, above 40 through 50 inclusive is High, above 50 is
// Premium.
type PriceRange string

const (
	PriceLow     PriceRange = "Low"
	PriceMedium  PriceRange = "Medium"
	PriceHigh    PriceRange = "High"
	PricePremium PriceRange = "Premium"
)

// RatingCategory buckets the 1..5 rating: 1-2 Low, 3 Medium, 4-5 High.
type RatingCategory string

const (
	RatingLow    RatingCategory = "Low"
	RatingMedium RatingCategory = "Medium"
	RatingHigh   RatingCategory = "High"
)

// StockLevel buckets the stock count: 0 Out, 1-5 Low, 6-15 Medium, >15 High.
type StockLevel string

const (
	StockOut    StockLevel = "Out"
	StockLow    StockLevel = "Low"
	StockMedium StockLevel = "Medium"
	StockHigh   StockLevel = "High"
)

// FeatureBook is a processed Book plus the engineered columns.
type FeatureBook struct {
	Book

	PriceRange      PriceRange     `json:"price_range"`
	RatingCategory  RatingCategory `json:"rating_category"`
	StockLevel      StockLevel     `json:"stock_level"`
	HasSubtitle     bool           `json:"has_subtitle"`
	HasSeriesMarker bool           `json:"has_series_marker"`
	TitleLength     int            `json:"title_length"`
	Popularity      float64        `json:"popularity"`

	// Categories holds the one-hot indicators keyed by category value. The
	// key set always equals the table vocabulary.
	Categories map[string]bool `json:"categories"`
}

// FeatureTable is the features dataset together with the category
// vocabulary observed when it was built. The vocabulary is sorted and
// defines the one-hot column order.
type FeatureTable struct {
	Books      []FeatureBook `json:"books"`
	Vocabulary []string      `json:"vocabulary"`
}

// PipelineStats summarises one pipeline run.
type PipelineStats struct {
	StartedAt            time.Time     `json:"started_at"`
	RawRecords           int           `json:"raw_records"`
	DuplicatesDropped    int           `json:"duplicates_dropped"`
	TitleDropped         int           `json:"title_dropped"`
	PriceDropped         int           `json:"price_dropped"`
	RatingsDefaulted     int           `json:"ratings_defaulted"`
	CategoriesNormalized int           `json:"categories_normalized"`
	ProcessedRecords     int           `json:"processed_records"`
	FeatureRecords       int           `json:"feature_records"`
	FeatureColumns       int           `json:"feature_columns"`
	Elapsed              time.Duration `json:"elapsed"`
}

// ScrapeResult holds the overall result of a scraping operation.
type ScrapeResult struct {
	Books        []RawBook
	StartTime    time.Time
	EndTime      time.Time
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	PageCount    int
}
