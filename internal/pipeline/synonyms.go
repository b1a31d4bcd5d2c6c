package pipeline

import (
	"compsheet/internal"
	"compsheet/internal/util"
)

type synonymSet struct {
	Field   internal.CanonicalField
	Phrases []string
}

// synonyms is walked in canonical declaration order. Phrases are matched as
// substrings of the folded header, so they must stay specific: bare "sqft"
// is left to the fallback chain to keep "Lot SqFt" on lot_sqft.
var synonyms = []synonymSet{
	{Field: internal.FieldAddress, Phrases: []string{"address", "addr", "street", "propertylocation", "location"}},
	{Field: internal.FieldListPrice, Phrases: []string{"listprice", "listingprice", "askingprice", "currentprice", "offeringprice"}},
	{Field: internal.FieldSoldPrice, Phrases: []string{"soldprice", "saleprice", "salesprice", "closeprice", "closingprice", "closedprice", "soldamount", "soldfor"}},
	{Field: internal.FieldBeds, Phrases: []string{"beds", "bedroom", "bedrms", "bdrms"}},
	{Field: internal.FieldBaths, Phrases: []string{"bath", "bthrms"}},
	{Field: internal.FieldSqft, Phrases: []string{"livingarea", "livingsqft", "sqftliving", "totalsqft", "finishedsqft", "heatedsqft", "gla", "buildingarea"}},
	{Field: internal.FieldDOM, Phrases: []string{"dom", "daysonmarket", "daysonmkt", "cdom"}},
	{Field: internal.FieldStatus, Phrases: []string{"status", "listingstatus", "mlsstatus"}},
	{Field: internal.FieldPhotoURL, Phrases: []string{"photourl", "photo", "image", "picture", "thumbnail", "mediaurl"}},
	{Field: internal.FieldYearBuilt, Phrases: []string{"yearbuilt", "yrbuilt", "built", "yearconstructed"}},
	{Field: internal.FieldLotSqft, Phrases: []string{"lotsqft", "lotsize", "lotarea", "lotsf", "landsqft"}},
	{Field: internal.FieldDistanceMi, Phrases: []string{"distance", "distancemi", "miles", "proximity"}},
}

type fallbackRule struct {
	Field internal.CanonicalField
	All   []string
	Any   []string
	None  []string
}

var fallbacks = []fallbackRule{
	{Field: internal.FieldSoldPrice, All: []string{"price"}, None: []string{"list"}},
	{Field: internal.FieldListPrice, All: []string{"list", "price"}},
	{Field: internal.FieldSqft, Any: []string{"sqft", "square"}},
	{Field: internal.FieldBeds, Any: []string{"bed"}},
	{Field: internal.FieldBaths, Any: []string{"bath"}},
	{Field: internal.FieldDOM, Any: []string{"dom"}},
	{Field: internal.FieldStatus, Any: []string{"status"}},
}

// foldedSynonyms holds the phrase table after HeaderKey folding, so phrases
// and headers are compared under the same normalization.
var foldedSynonyms = foldSynonyms(synonyms)

func foldSynonyms(in []synonymSet) []synonymSet {
	out := make([]synonymSet, 0, len(in))
	for _, set := range in {
		phrases := make([]string, 0, len(set.Phrases))
		for _, p := range set.Phrases {
			if key := util.HeaderKey(p); key != "" {
				phrases = append(phrases, key)
			}
		}
		out = append(out, synonymSet{Field: set.Field, Phrases: phrases})
	}
	return out
}
