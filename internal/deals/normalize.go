// Package deals turns heterogeneous raw promotion records into the uniform
// Deal representation the client renders.
package deals

import (
	"math"
	"strconv"
	"strings"
	"time"

	"inbox-deals-api/internal/models"
)

const (
	unknownMerchant = "Unknown Merchant"
	fallbackTitle   = "Special Offer"
	fallbackDesc    = "Exclusive offer just for you"
	genericLabel    = "Discount Available"
	genericValue    = "See Details"
	urgencyWindow   = 3 * 24 * time.Hour
	percentageType  = "percentage"
	amountType      = "amount"
)

// Ordered keyword groups for category classification. The first matching
// group wins: travel is checked before food before retail, and anything
// unmatched falls through to services.
var categoryKeywords = []struct {
	category models.Category
	keywords []string
}{
	{models.CategoryTravel, []string{"travel", "hotel", "flight", "airbnb", "booking"}},
	{models.CategoryFood, []string{"food", "restaurant", "uber eats", "doordash", "grubhub", "delivery"}},
	{models.CategoryRetail, []string{"amazon", "target", "walmart", "shop", "store", "retail"}},
}

// Categorize classifies a deal by keyword over the lowercased merchant name
// and subject line.
func Categorize(merchant, subject string) models.Category {
	text := strings.ToLower(merchant) + " " + strings.ToLower(subject)

	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(text, kw) {
				return group.category
			}
		}
	}

	return models.CategoryServices
}

// Normalize maps one raw promotion to a Deal. index is the record's
// position in the fetch response and is only used as the id fallback;
// linkFor builds the per-email resource URL and may be nil. now anchors the
// urgency computation.
func Normalize(raw models.RawPromotion, index int, linkFor func(emailID string) string, now time.Time) models.Deal {
	merchant := merchantOf(raw)

	deal := models.Deal{
		ID:          raw.ID,
		Merchant:    merchant,
		Category:    Categorize(merchant, raw.Subject),
		Title:       raw.Subject,
		Description: raw.Subject,
		Urgency:     models.UrgencyLow,
	}

	if deal.ID == "" {
		deal.ID = strconv.Itoa(index)
	}
	if deal.Title == "" {
		deal.Title = fallbackTitle
	}
	if deal.Description == "" {
		deal.Description = fallbackDesc
	}

	deal.DiscountLabel, deal.DisplayValue = renderDiscount(raw)

	if len(raw.Discounts) > 0 {
		first := raw.Discounts[0]
		deal.Code = first.Code
		// Only the discount's own validity end counts as expiry. The
		// sale-level end date is an event/travel date, never an offer
		// expiry.
		deal.ExpiryDate = parseExpiry(first.ValidUntil)
	}

	if raw.EmailID != "" && linkFor != nil {
		deal.CTALink = linkFor(raw.EmailID)
	}

	if deal.ExpiryDate != nil && deal.ExpiryDate.Sub(now) <= urgencyWindow {
		deal.Urgency = models.UrgencyHigh
	}

	return deal
}

// merchantOf resolves the merchant name: the sale's brand, else the first
// discount entry's brand, else a fixed placeholder.
func merchantOf(raw models.RawPromotion) string {
	if raw.Sale != nil && raw.Sale.Brand != "" {
		return raw.Sale.Brand
	}
	if len(raw.Discounts) > 0 && raw.Discounts[0].Brand != "" {
		return raw.Discounts[0].Brand
	}
	return unknownMerchant
}

// renderDiscount derives the discount label and display value from the
// first discount entry only; any further entries are ignored.
func renderDiscount(raw models.RawPromotion) (label, value string) {
	if len(raw.Discounts) > 0 && raw.Discounts[0].ReductionType != "" {
		first := raw.Discounts[0]

		switch strings.ToLower(first.ReductionType) {
		case percentageType:
			if first.ReductionValue != nil {
				s := formatNumber(*first.ReductionValue) + "% off"
				return s, s
			}
		case amountType:
			if first.ReductionValue != nil {
				rounded := math.Round(*first.ReductionValue*100) / 100
				s := formatNumber(rounded)
				return "$" + s + " off", "$" + s
			}
		}

		// A reduction type with no usable numeric value.
		return genericLabel, genericValue
	}

	if raw.Sale != nil && raw.Sale.Type != "" {
		return strings.ReplaceAll(raw.Sale.Type, "_", " "), genericValue
	}

	return fallbackTitle, genericValue
}

// formatNumber renders a float without trailing zeros, so 16.00 becomes
// "16" and 15.99 stays "15.99".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseExpiry accepts the date forms the extraction pipeline emits.
func parseExpiry(s string) *time.Time {
	if s == "" {
		return nil
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	return nil
}
