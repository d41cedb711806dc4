// Package vehicle turns one rendered listing page into a VehicleRecord.
package vehicle

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/auctionscrape/extractor"
	"github.com/use-agent/auctionscrape/models"
)

// Label sets, tried as a whole by the extractor.
var (
	StockLabels       = []string{"Stock No", "Stock#", "Stock Number", "Lot #", "Lot Number"}
	YearLabels        = []string{"Year"}
	MakeLabels        = []string{"Make"}
	ModelLabels       = []string{"Model"}
	AuctionDateLabels = []string{"Auction Date", "Sale Date", "Auction Time", "Sale Time"}
	ACVLabels         = []string{"ACV", "Actual Cash Value"}
	RepairCostLabels  = []string{"Repair Cost", "Estimated Repair Cost", "Est. Repair"}
)

var (
	// urlStockRe is the first run of at least five digits in a listing URL.
	urlStockRe = regexp.MustCompile(`\d{5,}`)

	// titleRe reads "<year> <make> <model...>" out of a page title.
	titleRe = regexp.MustCompile(`\b(?:19|20)\d{2}\b\s+([A-Za-z]+)\s+([A-Za-z0-9\- ]{2,})`)

	// moneyRe is a dollar amount: optional "$", digits with or without
	// thousands separators, optional cents.
	moneyRe = regexp.MustCompile(`\$?\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?`)
)

// BuildRecord extracts a VehicleRecord from rawHTML. It never fails: any
// field it cannot find is left empty, and URL is always sourceURL.
func BuildRecord(rawHTML, sourceURL string) models.VehicleRecord {
	doc, _ := extractor.Parse(rawHTML)
	return buildFromDocument(doc, sourceURL)
}

func buildFromDocument(doc *goquery.Document, sourceURL string) models.VehicleRecord {
	stockNo := StockFromURL(sourceURL)
	if pageStock := extractor.FindValue(doc, StockLabels); pageStock != "" {
		stockNo = pageStock
	}

	year := extractor.FindValue(doc, YearLabels)
	carMake := extractor.FindValue(doc, MakeLabels)
	model := extractor.FindValue(doc, ModelLabels)
	if year == "" || carMake == "" || model == "" {
		if title := pageTitle(doc); title != "" {
			year, carMake, model = fillFromTitle(title, year, carMake, model)
		}
	}

	return models.VehicleRecord{
		StockNo:     extractor.Clean(stockNo),
		Make:        extractor.Clean(carMake),
		Model:       extractor.Clean(model),
		Year:        extractor.Clean(year),
		AuctionDate: extractor.Clean(extractor.FindValue(doc, AuctionDateLabels)),
		URL:         sourceURL,
		ACVCost:     extractor.Clean(NormalizeMoney(extractor.FindValue(doc, ACVLabels))),
		RepairCost:  extractor.Clean(NormalizeMoney(extractor.FindValue(doc, RepairCostLabels))),
	}
}

// StockFromURL returns the first run of five or more digits in u, or "".
func StockFromURL(u string) string {
	return urlStockRe.FindString(u)
}

// NormalizeMoney reduces text to its first dollar amount. Text without
// one is returned unchanged.
func NormalizeMoney(text string) string {
	if m := moneyRe.FindString(text); m != "" {
		return m
	}
	return text
}

// fillFromTitle parses title and fills only the values still empty.
func fillFromTitle(title, year, carMake, model string) (string, string, string) {
	loc := titleRe.FindStringSubmatchIndex(title)
	if loc == nil {
		return year, carMake, model
	}
	if year == "" {
		year = title[loc[0] : loc[0]+4]
	}
	if carMake == "" {
		carMake = title[loc[2]:loc[3]]
	}
	if model == "" {
		model = strings.TrimSpace(title[loc[4]:loc[5]])
	}
	return year, carMake, model
}

func pageTitle(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	title := doc.Find("title").First()
	if title.Length() == 0 {
		return ""
	}
	return extractor.Clean(title.Text())
}
