package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

var (
	ErrUnknownUnit           = errors.New("unknown unit")
	ErrUnsupportedConversion = errors.New("unsupported conversion")
)

type Family string

const (
	FamilyMass   Family = "mass"
	FamilyVolume Family = "volume"
	FamilyCount  Family = "count"
)

type unitDef struct {
	family Family
	toBase decimal.Decimal
}

// Table holds the standard factors. It is built once and never mutated,
// so a single value can be shared across goroutines.
type Table struct {
	defs      map[domain.Unit]unitDef
	canonical map[Family]domain.Unit
}

func StandardTable() *Table {
	return &Table{
		defs: map[domain.Unit]unitDef{
			domain.UnitMilligram:  {family: FamilyMass, toBase: decimal.New(1, -6)},
			domain.UnitGram:       {family: FamilyMass, toBase: decimal.New(1, -3)},
			domain.UnitKilogram:   {family: FamilyMass, toBase: decimal.NewFromInt(1)},
			domain.UnitMilliliter: {family: FamilyVolume, toBase: decimal.New(1, -3)},
			domain.UnitLiter:      {family: FamilyVolume, toBase: decimal.NewFromInt(1)},
			domain.UnitPiece:      {family: FamilyCount, toBase: decimal.NewFromInt(1)},
		},
		canonical: map[Family]domain.Unit{
			FamilyMass:   domain.UnitKilogram,
			FamilyVolume: domain.UnitLiter,
			FamilyCount:  domain.UnitPiece,
		},
	}
}

func (t *Table) Family(u domain.Unit) (Family, error) {
	def, ok := t.defs[u]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, u)
	}
	return def.family, nil
}

func (t *Table) Canonical(u domain.Unit) (domain.Unit, error) {
	family, err := t.Family(u)
	if err != nil {
		return "", err
	}
	return t.canonical[family], nil
}

// standardFactor returns the multiplier from one unit to another of the same family.
func (t *Table) standardFactor(from, to domain.Unit) (decimal.Decimal, bool) {
	a, okA := t.defs[from]
	b, okB := t.defs[to]
	if !okA || !okB || a.family != b.family {
		return decimal.Zero, false
	}
	return a.toBase.Div(b.toBase), true
}

var aliases = map[string]domain.Unit{
	"mg":          domain.UnitMilligram,
	"milligram":   domain.UnitMilligram,
	"milligrams":  domain.UnitMilligram,
	"g":           domain.UnitGram,
	"gr":          domain.UnitGram,
	"gram":        domain.UnitGram,
	"grams":       domain.UnitGram,
	"kg":          domain.UnitKilogram,
	"kilo":        domain.UnitKilogram,
	"kilogram":    domain.UnitKilogram,
	"kilograms":   domain.UnitKilogram,
	"ml":          domain.UnitMilliliter,
	"milliliter":  domain.UnitMilliliter,
	"milliliters": domain.UnitMilliliter,
	"millilitre":  domain.UnitMilliliter,
	"l":           domain.UnitLiter,
	"lt":          domain.UnitLiter,
	"liter":       domain.UnitLiter,
	"liters":      domain.UnitLiter,
	"litre":       domain.UnitLiter,
	"unit":        domain.UnitPiece,
	"units":       domain.UnitPiece,
	"un":          domain.UnitPiece,
	"pc":          domain.UnitPiece,
	"pcs":         domain.UnitPiece,
	"piece":       domain.UnitPiece,
	"pieces":      domain.UnitPiece,
	"ea":          domain.UnitPiece,
}

// Parse maps a user supplied unit name to its canonical code.
func Parse(raw string) (domain.Unit, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if u, ok := aliases[key]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, raw)
}
