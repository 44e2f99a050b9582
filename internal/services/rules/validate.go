package rules

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/migro/internal/models"
)

// lowDensityThreshold marks a prose field low-density when its average
// density score across matching samples falls below it
const lowDensityThreshold = 0.3

// prose field types that get density scoring
func isProseField(fieldType string) bool {
	return fieldType == "richtext"
}

// sample is one group member used for selector validation
type sample struct {
	URL string
	Doc *goquery.Document
}

// parseSamples builds queryable documents for the validation members
func parseSamples(items []*models.StagedItem) ([]*sample, error) {
	samples := make([]*sample, 0, len(items))
	for _, item := range items {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.StrippedHTML))
		if err != nil {
			return nil, fmt.Errorf("failed to parse sample %s: %w", item.URL, err)
		}
		samples = append(samples, &sample{URL: item.URL, Doc: doc})
	}
	return samples, nil
}

// validateSelector applies one selector to every validation sample and
// produces the field's validation report
func validateSelector(selector, fieldType string, samples []*sample) *models.FieldValidation {
	validation := &models.FieldValidation{
		SampleCount: len(samples),
	}
	if len(samples) == 0 {
		return validation
	}

	matched := 0
	var densityTotal float64
	for _, s := range samples {
		selection := s.Doc.Find(selector)
		if selection.Length() == 0 {
			validation.FailedURLs = append(validation.FailedURLs, s.URL)
			continue
		}
		matched++
		if isProseField(fieldType) {
			densityTotal += densityScore(selection)
		}
	}

	validation.SuccessRate = float64(matched) / float64(len(samples))
	validation.IsInvalid = matched == 0
	validation.IsBrittle = validation.SuccessRate < 1.0

	if isProseField(fieldType) && matched > 0 {
		validation.DensityScore = densityTotal / float64(matched)
		validation.IsLowDensity = validation.DensityScore < lowDensityThreshold
	}

	return validation
}

// densityScore estimates how much real prose a selection carries.
// Semantic descendants (paragraphs, headings, list items) and non-link
// text raise the score; heavy link density drags it down, separating
// article bodies from navigation blocks that happen to match the same
// selector.
func densityScore(selection *goquery.Selection) float64 {
	semantic := selection.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote").Length()

	totalText := len(strings.TrimSpace(selection.Text()))
	linkText := 0
	selection.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkText += len(strings.TrimSpace(a.Text()))
	})
	nonLinkText := totalText - linkText
	if nonLinkText < 0 {
		nonLinkText = 0
	}

	// Normalize: 200+ chars of non-link prose or a handful of semantic
	// blocks both read as solid content
	textScore := float64(nonLinkText) / 200.0
	if textScore > 1 {
		textScore = 1
	}
	blockScore := float64(semantic) / 4.0
	if blockScore > 1 {
		blockScore = 1
	}

	score := 0.6*textScore + 0.4*blockScore

	if totalText > 0 {
		linkRatio := float64(linkText) / float64(totalText)
		score *= 1 - 0.7*linkRatio
	}
	return score
}
