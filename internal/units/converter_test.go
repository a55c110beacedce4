package units

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

type factorKey struct {
	materialID string
	from       domain.Unit
	to         domain.Unit
}

type mapSource map[factorKey]decimal.Decimal

func (m mapSource) LookupFactor(_ context.Context, materialID string, from, to domain.Unit) (decimal.Decimal, bool, error) {
	f, ok := m[factorKey{materialID, from, to}]
	return f, ok, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestConvertIdentityAndStandard(t *testing.T) {
	c := NewConverter(nil)
	ctx := context.Background()

	got, err := c.Convert(ctx, dec("3.5"), domain.UnitKilogram, domain.UnitKilogram, Subject{})
	if err != nil || !got.Equal(dec("3.5")) {
		t.Fatalf("identity: got %s err %v", got, err)
	}

	got, err = c.Convert(ctx, dec("2.5"), domain.UnitKilogram, domain.UnitGram, Subject{})
	if err != nil || !got.Equal(dec("2500")) {
		t.Fatalf("kg->g: got %s err %v", got, err)
	}

	got, err = c.Convert(ctx, dec("750"), domain.UnitMilliliter, domain.UnitLiter, Subject{})
	if err != nil || !got.Equal(dec("0.75")) {
		t.Fatalf("ml->l: got %s err %v", got, err)
	}

	got, err = c.Convert(ctx, dec("1500"), domain.UnitMilligram, domain.UnitGram, Subject{})
	if err != nil || !got.Equal(dec("1.5")) {
		t.Fatalf("mg->g: got %s err %v", got, err)
	}
}

func TestConvertCustomFactorOverridesStandard(t *testing.T) {
	src := mapSource{
		{"mat-sugar", domain.UnitKilogram, domain.UnitGram}: dec("990"),
		{"", domain.UnitPiece, domain.UnitGram}:             dec("50"),
	}
	c := NewConverter(nil).WithSource(src)
	ctx := context.Background()

	got, err := c.Convert(ctx, dec("2"), domain.UnitKilogram, domain.UnitGram, Subject{MaterialID: "mat-sugar"})
	if err != nil || !got.Equal(dec("1980")) {
		t.Fatalf("material factor: got %s err %v", got, err)
	}

	got, err = c.Convert(ctx, dec("2"), domain.UnitKilogram, domain.UnitGram, Subject{MaterialID: "mat-salt"})
	if err != nil || !got.Equal(dec("2000")) {
		t.Fatalf("other material should use standard factor, got %s err %v", got, err)
	}

	got, err = c.Convert(ctx, dec("3"), domain.UnitPiece, domain.UnitGram, Subject{MaterialID: "mat-egg"})
	if err != nil || !got.Equal(dec("150")) {
		t.Fatalf("global factor: got %s err %v", got, err)
	}

	got, err = c.Convert(ctx, dec("100"), domain.UnitGram, domain.UnitPiece, Subject{})
	if err != nil || !got.Equal(dec("2")) {
		t.Fatalf("inverse global factor: got %s err %v", got, err)
	}
}

func TestConvertDensityBridge(t *testing.T) {
	c := NewConverter(nil)
	ctx := context.Background()
	density := dec("1.25")

	got, err := c.Convert(ctx, dec("1"), domain.UnitKilogram, domain.UnitLiter, Subject{Density: &density})
	if err != nil || !got.Equal(dec("0.8")) {
		t.Fatalf("kg->l: got %s err %v", got, err)
	}

	got, err = c.Convert(ctx, dec("200"), domain.UnitMilliliter, domain.UnitGram, Subject{Density: &density})
	if err != nil || !got.Equal(dec("250")) {
		t.Fatalf("ml->g: got %s err %v", got, err)
	}
}

func TestConvertUnsupported(t *testing.T) {
	c := NewConverter(nil)
	ctx := context.Background()

	if _, err := c.Convert(ctx, dec("1"), domain.UnitKilogram, domain.UnitLiter, Subject{}); !errors.Is(err, ErrUnsupportedConversion) {
		t.Fatalf("expected unsupported conversion without density, got %v", err)
	}
	density := dec("1")
	if _, err := c.Convert(ctx, dec("1"), domain.UnitPiece, domain.UnitKilogram, Subject{Density: &density}); !errors.Is(err, ErrUnsupportedConversion) {
		t.Fatalf("expected count->mass to be unsupported, got %v", err)
	}
	if _, err := c.Convert(ctx, dec("1"), domain.Unit("cup"), domain.UnitLiter, Subject{}); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected unknown unit, got %v", err)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	c := NewConverter(nil).WithSource(mapSource{
		{"", domain.UnitPiece, domain.UnitGram}: dec("7"),
	})
	ctx := context.Background()
	density := dec("3")
	subj := Subject{Density: &density}
	tolerance := dec("0.000000001")

	pairs := [][2]domain.Unit{
		{domain.UnitKilogram, domain.UnitGram},
		{domain.UnitMilligram, domain.UnitKilogram},
		{domain.UnitLiter, domain.UnitMilliliter},
		{domain.UnitKilogram, domain.UnitLiter},
		{domain.UnitMilliliter, domain.UnitMilligram},
		{domain.UnitPiece, domain.UnitGram},
	}
	x := dec("12.345")
	for _, p := range pairs {
		there, err := c.Convert(ctx, x, p[0], p[1], subj)
		if err != nil {
			t.Fatalf("%s->%s: %v", p[0], p[1], err)
		}
		back, err := c.Convert(ctx, there, p[1], p[0], subj)
		if err != nil {
			t.Fatalf("%s->%s: %v", p[1], p[0], err)
		}
		if back.Sub(x).Abs().GreaterThan(tolerance) {
			t.Fatalf("round trip %s<->%s drifted: %s", p[0], p[1], back)
		}
	}
}

func TestNormalizeToBase(t *testing.T) {
	c := NewConverter(nil)
	ctx := context.Background()

	qty, unit, err := c.NormalizeToBase(ctx, dec("2500"), domain.UnitGram, Subject{})
	if err != nil || unit != domain.UnitKilogram || !qty.Equal(dec("2.5")) {
		t.Fatalf("unexpected normalize result %s %s %v", qty, unit, err)
	}
	qty, unit, err = c.NormalizeToBase(ctx, dec("330"), domain.UnitMilliliter, Subject{})
	if err != nil || unit != domain.UnitLiter || !qty.Equal(dec("0.33")) {
		t.Fatalf("unexpected normalize result %s %s %v", qty, unit, err)
	}
	qty, unit, err = c.NormalizeToBase(ctx, dec("12"), domain.UnitPiece, Subject{})
	if err != nil || unit != domain.UnitPiece || !qty.Equal(dec("12")) {
		t.Fatalf("unexpected normalize result %s %s %v", qty, unit, err)
	}
}

func TestParseAliases(t *testing.T) {
	cases := map[string]domain.Unit{
		"KG":     domain.UnitKilogram,
		" L ":    domain.UnitLiter,
		"liter":  domain.UnitLiter,
		"pcs":    domain.UnitPiece,
		"Grams":  domain.UnitGram,
		"ml":     domain.UnitMilliliter,
		"mg":     domain.UnitMilligram,
		"pieces": domain.UnitPiece,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil || got != want {
			t.Fatalf("Parse(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := Parse("bushel"); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
}
