package models

// Column names of the output CSV, in their fixed order.
const (
	ColStockNo     = "Stock No"
	ColMake        = "Make"
	ColModel       = "Model"
	ColYear        = "Year"
	ColAuctionDate = "Auction Date"
	ColURL         = "URL"
	ColACVCost     = "ACV Cost"
	ColRepairCost  = "Repair Cost"
)

// Columns is the header row of every CSV this tool writes.
var Columns = []string{
	ColStockNo,
	ColMake,
	ColModel,
	ColYear,
	ColAuctionDate,
	ColURL,
	ColACVCost,
	ColRepairCost,
}

// VehicleRecord is one auction listing. Every field is a string; an empty
// string means the value was not found on the page. URL is always set.
type VehicleRecord struct {
	StockNo     string `json:"stock_no"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	Year        string `json:"year"`
	AuctionDate string `json:"auction_date"`
	URL         string `json:"url"`
	ACVCost     string `json:"acv_cost"`
	RepairCost  string `json:"repair_cost"`
}

// Row returns the record's values in Columns order.
func (r VehicleRecord) Row() []string {
	return []string{
		r.StockNo,
		r.Make,
		r.Model,
		r.Year,
		r.AuctionDate,
		r.URL,
		r.ACVCost,
		r.RepairCost,
	}
}

// Get returns the value stored under the given column name, or "" for an
// unknown column.
func (r VehicleRecord) Get(column string) string {
	switch column {
	case ColStockNo:
		return r.StockNo
	case ColMake:
		return r.Make
	case ColModel:
		return r.Model
	case ColYear:
		return r.Year
	case ColAuctionDate:
		return r.AuctionDate
	case ColURL:
		return r.URL
	case ColACVCost:
		return r.ACVCost
	case ColRepairCost:
		return r.RepairCost
	default:
		return ""
	}
}

// RecordFromMap builds a record from a column-name keyed map. Missing
// columns are left empty.
func RecordFromMap(m map[string]string) VehicleRecord {
	return VehicleRecord{
		StockNo:     m[ColStockNo],
		Make:        m[ColMake],
		Model:       m[ColModel],
		Year:        m[ColYear],
		AuctionDate: m[ColAuctionDate],
		URL:         m[ColURL],
		ACVCost:     m[ColACVCost],
		RepairCost:  m[ColRepairCost],
	}
}
