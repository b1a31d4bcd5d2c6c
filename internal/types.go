package internal

import (
	"strconv"
	"time"
)

type CanonicalField string

const (
	FieldAddress    CanonicalField = "address"
	FieldListPrice  CanonicalField = "list_price"
	FieldSoldPrice  CanonicalField = "sold_price"
	FieldBeds       CanonicalField = "beds"
	FieldBaths      CanonicalField = "baths"
	FieldSqft       CanonicalField = "sqft"
	FieldDOM        CanonicalField = "dom"
	FieldStatus     CanonicalField = "status"
	FieldPhotoURL   CanonicalField = "photo_url"
	FieldYearBuilt  CanonicalField = "year_built"
	FieldLotSqft    CanonicalField = "lot_sqft"
	FieldDistanceMi CanonicalField = "distance_mi"
)

// Fields lists the canonical fields in declaration order. Header matching
// walks this order and the first matching field wins.
var Fields = []CanonicalField{
	FieldAddress,
	FieldListPrice,
	FieldSoldPrice,
	FieldBeds,
	FieldBaths,
	FieldSqft,
	FieldDOM,
	FieldStatus,
	FieldPhotoURL,
	FieldYearBuilt,
	FieldLotSqft,
	FieldDistanceMi,
}

type ValueKind string

const (
	KindText    ValueKind = "text"
	KindNumeric ValueKind = "numeric"
)

func (f CanonicalField) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

func (f CanonicalField) Kind() ValueKind {
	switch f {
	case FieldAddress, FieldStatus, FieldPhotoURL:
		return KindText
	default:
		return KindNumeric
	}
}

type TableSource string

const (
	SourceCSV   TableSource = "csv"
	SourceXLSX  TableSource = "xlsx"
	SourceHTML  TableSource = "html"
	SourcePDF   TableSource = "pdf"
	SourceEmail TableSource = "email"
)

// Table is an ingested sheet: ordered headers plus one map per data row.
// Cell values are usually strings but may already be numeric.
type Table struct {
	Name    string
	Source  TableSource
	Sheet   string
	Headers []string
	Rows    []map[string]any
}

// MappingEntry assigns a raw header to a canonical field. An empty Field
// leaves the header unmapped.
type MappingEntry struct {
	Header string         `json:"header" yaml:"header"`
	Field  CanonicalField `json:"field" yaml:"field"`
}

type HeaderMapping []MappingEntry

func (m HeaderMapping) MappedCount() int {
	n := 0
	for _, e := range m {
		if e.Field.Valid() {
			n++
		}
	}
	return n
}

func IdentityMapping() HeaderMapping {
	out := make(HeaderMapping, 0, len(Fields))
	for _, f := range Fields {
		out = append(out, MappingEntry{Header: string(f), Field: f})
	}
	return out
}

// Comp is one normalized comparable sale. Nil fields had no usable value.
type Comp struct {
	Address    *string  `json:"address"`
	ListPrice  *float64 `json:"list_price"`
	SoldPrice  *float64 `json:"sold_price"`
	Beds       *float64 `json:"beds"`
	Baths      *float64 `json:"baths"`
	Sqft       *float64 `json:"sqft"`
	DOM        *float64 `json:"dom"`
	Status     *string  `json:"status"`
	PhotoURL   *string  `json:"photo_url"`
	YearBuilt  *float64 `json:"year_built"`
	LotSqft    *float64 `json:"lot_sqft"`
	DistanceMi *float64 `json:"distance_mi"`
}

func (c *Comp) text(f CanonicalField) **string {
	switch f {
	case FieldAddress:
		return &c.Address
	case FieldStatus:
		return &c.Status
	case FieldPhotoURL:
		return &c.PhotoURL
	}
	return nil
}

func (c *Comp) number(f CanonicalField) **float64 {
	switch f {
	case FieldListPrice:
		return &c.ListPrice
	case FieldSoldPrice:
		return &c.SoldPrice
	case FieldBeds:
		return &c.Beds
	case FieldBaths:
		return &c.Baths
	case FieldSqft:
		return &c.Sqft
	case FieldDOM:
		return &c.DOM
	case FieldYearBuilt:
		return &c.YearBuilt
	case FieldLotSqft:
		return &c.LotSqft
	case FieldDistanceMi:
		return &c.DistanceMi
	}
	return nil
}

func (c *Comp) SetText(f CanonicalField, v *string) {
	if p := c.text(f); p != nil {
		*p = v
	}
}

func (c *Comp) SetNumber(f CanonicalField, v *float64) {
	if p := c.number(f); p != nil {
		*p = v
	}
}

// Get returns the field value as a plain string, float64, or nil.
func (c Comp) Get(f CanonicalField) any {
	if p := c.text(f); p != nil {
		if *p == nil {
			return nil
		}
		return **p
	}
	if p := c.number(f); p != nil {
		if *p == nil {
			return nil
		}
		return **p
	}
	return nil
}

func (c Comp) Row() map[string]any {
	out := make(map[string]any, len(Fields))
	for _, f := range Fields {
		out[string(f)] = c.Get(f)
	}
	return out
}

func (c Comp) Strings() []string {
	out := make([]string, 0, len(Fields))
	for _, f := range Fields {
		switch v := c.Get(f).(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			out = append(out, "")
		}
	}
	return out
}

func (c Comp) HasAddress() bool {
	return c.Address != nil && *c.Address != ""
}

type MarketStats struct {
	AvgSoldPrice      *float64 `json:"avgSoldPrice"`
	AvgPricePerSqft   *float64 `json:"avgPricePerSqft"`
	AvgDOM            *float64 `json:"avgDOM"`
	Median            *float64 `json:"median"`
	SuggestedListLow  *float64 `json:"suggestedListLow"`
	SuggestedListHigh *float64 `json:"suggestedListHigh"`
}

type Report struct {
	ID         string      `json:"id"`
	UploadID   int64       `json:"uploadId"`
	MappingID  int64       `json:"mappingId"`
	Title      string      `json:"title"`
	ShareToken string      `json:"shareToken"`
	Comps      []Comp      `json:"comps"`
	Stats      MarketStats `json:"stats"`
	Dropped    int         `json:"dropped"`
	CreatedAt  time.Time   `json:"createdAt"`
	ExpiresAt  *time.Time  `json:"expiresAt,omitempty"`
}

type UploadRow struct {
	ID         int64
	SourceName string
	Source     TableSource
	Sheet      string
	Headers    []string
	RowCount   int
	EmailID    *int
	CreatedAt  string
}

type MappingOrigin string

const (
	MappingSuggested MappingOrigin = "suggested"
	MappingEdited    MappingOrigin = "edited"
)

type MappingRow struct {
	ID        int64
	UploadID  int64
	Origin    MappingOrigin
	Mapping   HeaderMapping
	CreatedAt string
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
