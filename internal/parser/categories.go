package parser

// DefaultCategories is the Simplii category vocabulary. Suffix matching
// takes the first entry that matches, so a name must precede any shorter
// name it ends with.
var DefaultCategories = []string{
	"Transportation",
	"Restaurants",
	"Retail and Grocery",
	"Personal and Household Expenses",
	"Professional and Financial Services",
	"Foreign Currency Transactions",
	"Health and Education",
	"Home and Office Improvement",
	"Hotel, Entertainment and Recreation",
	"Other Transactions",
}

// DefaultRegions are the province and territory codes printed between the
// merchant and the category.
var DefaultRegions = []string{
	"AB", "BC", "MB", "NB", "NL", "NS", "NT", "NU", "ON", "PE", "QC", "SK", "YT",
}

// DefaultFiller are mis-decoded characters left behind by the PDF text layer.
var DefaultFiller = []string{"Ã", "�"}

// Config is the vocabulary a statement parser works with.
type Config struct {
	Categories []string
	Regions    []string
	Filler     []string
}

// DefaultConfig returns the Simplii vocabulary.
func DefaultConfig() Config {
	return Config{
		Categories: append([]string(nil), DefaultCategories...),
		Regions:    append([]string(nil), DefaultRegions...),
		Filler:     append([]string(nil), DefaultFiller...),
	}
}

// WithCategories returns a copy of c using the given category vocabulary.
// An empty list keeps the current one.
func (c Config) WithCategories(categories []string) Config {
	if len(categories) == 0 {
		return c
	}
	c.Categories = append([]string(nil), categories...)
	return c
}
