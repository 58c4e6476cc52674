package strategy

import (
	"errors"
	"fmt"
	"sort"
)

// ConfidenceTable maps (city, lead days, agreement) to the historical rate
// at which the consensus bucket matched the settled bucket.
//
// Cities[slug][lead][agreement-1] holds the probability. The table is
// loaded once per process and passed by value; it is never mutated after
// Validate succeeds.
type ConfidenceTable struct {
	Version      string                 `json:"version"`
	MaxLead      int                    `json:"max_lead"`
	MaxAgreement int                    `json:"max_agreement"`
	Cities       map[string][][]float64 `json:"cities"`
}

// Lookup returns the calibrated confidence. Lead and agreement are clamped to
// the calibrated range; a city or cell that was never calibrated yields 0.
func (t ConfidenceTable) Lookup(city string, leadDays, agreement int) float64 {
	rows, ok := t.Cities[city]
	if !ok || agreement < 1 {
		return 0
	}
	lead := min(max(leadDays, 0), t.MaxLead)
	agree := min(agreement, t.MaxAgreement)
	if lead >= len(rows) {
		return 0
	}
	row := rows[lead]
	if agree-1 >= len(row) {
		return 0
	}
	return row[agree-1]
}

// Validate checks the table shape and that every cell is a probability.
func (t ConfidenceTable) Validate() error {
	var errs []error
	if t.Version == "" {
		errs = append(errs, errors.New("version must not be empty"))
	}
	if t.MaxLead < 0 {
		errs = append(errs, fmt.Errorf("max_lead must be >= 0, got %d", t.MaxLead))
	}
	if t.MaxAgreement < 1 {
		errs = append(errs, fmt.Errorf("max_agreement must be >= 1, got %d", t.MaxAgreement))
	}
	for _, city := range t.CityNames() {
		for lead, row := range t.Cities[city] {
			for i, p := range row {
				if p < 0 || p > 1 {
					errs = append(errs, fmt.Errorf("%s lead %d agreement %d: %v outside [0,1]", city, lead, i+1, p))
				}
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("strategy: confidence table: %w", errors.Join(errs...))
	}
	return nil
}

// CityNames returns the calibrated city slugs in sorted order.
func (t ConfidenceTable) CityNames() []string {
	names := make([]string, 0, len(t.Cities))
	for c := range t.Cities {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

// DefaultConfidenceTable is the calibration shipped with the binary.
func DefaultConfidenceTable() ConfidenceTable {
	return ConfidenceTable{
		Version:      "2025-02-default",
		MaxLead:      2,
		MaxAgreement: 3,
		Cities: map[string][][]float64{
			"london": {
				{0.81, 0.83, 0.91},
				{0.57, 0.58, 0.68},
				{0.52, 0.55, 0.65},
			},
			"paris": {
				{0.61, 0.66, 0.76},
				{0.42, 0.44, 0.47},
				{0.32, 0.32, 0.33},
			},
			"chicago": {
				{0.70, 0.66, 0.82},
				{0.30, 0.27, 0.17},
				{0.22, 0.23, 0.13},
			},
		},
	}
}
