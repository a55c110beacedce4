package units

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

// FactorSource finds a custom factor stored for a material. An empty
// materialID asks for a global factor. Only the direct from->to row is
// looked up; the converter tries the inverse itself.
type FactorSource interface {
	LookupFactor(ctx context.Context, materialID string, from, to domain.Unit) (decimal.Decimal, bool, error)
}

// Subject carries what a conversion may know about the material being measured.
type Subject struct {
	MaterialID string
	Density    *decimal.Decimal // g/ml
}

type Converter struct {
	table  *Table
	source FactorSource
}

func NewConverter(table *Table) *Converter {
	if table == nil {
		table = StandardTable()
	}
	return &Converter{table: table}
}

// WithSource returns a copy that also consults custom factors from src.
func (c *Converter) WithSource(src FactorSource) *Converter {
	return &Converter{table: c.table, source: src}
}

func (c *Converter) Table() *Table {
	return c.table
}

// Convert resolves in order: identity, material custom factor, global custom
// factor, standard table, density bridge between mass and volume.
func (c *Converter) Convert(ctx context.Context, qty decimal.Decimal, from, to domain.Unit, subj Subject) (decimal.Decimal, error) {
	fromFamily, err := c.table.Family(from)
	if err != nil {
		return decimal.Zero, err
	}
	toFamily, err := c.table.Family(to)
	if err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return qty, nil
	}

	if c.source != nil {
		scopes := []string{""}
		if subj.MaterialID != "" {
			scopes = []string{subj.MaterialID, ""}
		}
		for _, scope := range scopes {
			factor, ok, err := c.customFactor(ctx, scope, from, to)
			if err != nil {
				return decimal.Zero, err
			}
			if ok {
				return qty.Mul(factor), nil
			}
		}
	}

	if factor, ok := c.table.standardFactor(from, to); ok {
		return qty.Mul(factor), nil
	}

	if subj.Density != nil && subj.Density.IsPositive() {
		switch {
		case fromFamily == FamilyMass && toFamily == FamilyVolume:
			grams, _ := c.table.standardFactor(from, domain.UnitGram)
			ml := qty.Mul(grams).Div(*subj.Density)
			toML, _ := c.table.standardFactor(domain.UnitMilliliter, to)
			return ml.Mul(toML), nil
		case fromFamily == FamilyVolume && toFamily == FamilyMass:
			ml, _ := c.table.standardFactor(from, domain.UnitMilliliter)
			g := qty.Mul(ml).Mul(*subj.Density)
			toG, _ := c.table.standardFactor(domain.UnitGram, to)
			return g.Mul(toG), nil
		}
	}

	return decimal.Zero, fmt.Errorf("%w: %s -> %s", ErrUnsupportedConversion, from, to)
}

func (c *Converter) customFactor(ctx context.Context, materialID string, from, to domain.Unit) (decimal.Decimal, bool, error) {
	factor, ok, err := c.source.LookupFactor(ctx, materialID, from, to)
	if err != nil || ok {
		return factor, ok, err
	}
	inverse, ok, err := c.source.LookupFactor(ctx, materialID, to, from)
	if err != nil || !ok || inverse.IsZero() {
		return decimal.Zero, false, err
	}
	return decimal.NewFromInt(1).Div(inverse), true, nil
}

// NormalizeToBase converts qty into the canonical unit of its family (kg, l, unit).
func (c *Converter) NormalizeToBase(ctx context.Context, qty decimal.Decimal, unit domain.Unit, subj Subject) (decimal.Decimal, domain.Unit, error) {
	canonical, err := c.table.Canonical(unit)
	if err != nil {
		return decimal.Zero, "", err
	}
	out, err := c.Convert(ctx, qty, unit, canonical, subj)
	if err != nil {
		return decimal.Zero, "", err
	}
	return out, canonical, nil
}
