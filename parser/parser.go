// Package parser normalizes raw scraped field values.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-books-pipeline/models"
)

// ValidateRaw ensures the scraper captured the fields the cleaning stage
// cannot default. A missing price is not an error here: the cleaning stage
// drops and counts such rows itself.
func ValidateRaw(b *models.RawBook) error {
	if b == nil {
		return fmt.Errorf("raw book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("raw book missing title")
	}
	return nil
}

var currencyRunes = strings.NewReplacer("£", "", "Â£", "", "$", "", "€", "", ",", "")

// ParsePrice converts a currency-formatted price string into a number.
// It reports ok=false for empty, non-numeric, or non-positive prices.
func ParsePrice(price string) (float64, bool) {
	cleaned := strings.TrimSpace(currencyRunes.Replace(price))
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// ParseRating converts a rating value to the 1..5 scale. The site renders
// ratings as English words; digits are accepted for externally supplied data.
func ParseRating(rating string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(rating)) {
	case "one", "1":
		return 1, true
	case "two", "2":
		return 2, true
	case "three", "3":
		return 3, true
	case "four", "4":
		return 4, true
	case "five", "5":
		return 5, true
	default:
		return 0, false
	}
}

// ParseAvailability converts the free-text availability flag to a boolean.
// Only recognized affirmative forms count as available; anything else,
// including unknown values, is unavailable.
func ParseAvailability(text string) bool {
	switch normalized := strings.ToLower(strings.TrimSpace(text)); {
	case normalized == "yes" || normalized == "y" || normalized == "true" || normalized == "1":
		return true
	case normalized == "available":
		return true
	case strings.HasPrefix(normalized, "in stock"):
		return true
	default:
		return false
	}
}

var stockPattern = regexp.MustCompile(`\d+`)

// ParseStock extracts the stock count from strings such as "22" or
// "In stock (22 available)". Unparseable values yield zero.
func ParseStock(text string) int {
	match := stockPattern.FindString(text)
	if match == "" {
		return 0
	}
	count, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return count
}
