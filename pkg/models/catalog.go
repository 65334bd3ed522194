package models

type PackType string

const (
	PackTypeSingle PackType = "single"
	PackTypeCase   PackType = "case"
)

// CatalogProduct is a read-only master product joined with its family.
type CatalogProduct struct {
	ID               string   `json:"id" db:"id"`
	FamilyID         string   `json:"family_id" db:"family_id"`
	Producer         string   `json:"producer" db:"producer"`
	Name             string   `json:"name" db:"name"`
	Vintage          *int     `json:"vintage,omitempty" db:"vintage"`
	VolumeML         *int     `json:"volume_ml,omitempty" db:"volume_ml"`
	ABV              *float64 `json:"abv,omitempty" db:"abv"`
	PackType         PackType `json:"pack_type,omitempty" db:"pack_type"`
	UnitsPerCase     *int     `json:"units_per_case,omitempty" db:"units_per_case"`
	Country          string   `json:"country,omitempty" db:"country"`
	Region           string   `json:"region,omitempty" db:"region"`
	Grapes           []string `json:"grapes,omitempty" db:"-"`
	VintageSensitive bool     `json:"vintage_sensitive" db:"vintage_sensitive"`
	GTINs            []string `json:"gtins,omitempty" db:"-"`
}
