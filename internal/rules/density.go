package rules

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ErrUnparsableDensity is returned for a descriptor outside the grammar.
var ErrUnparsableDensity = errors.New("unparsable dwelling density")

// DensityKind classifies a dwelling density descriptor.
type DensityKind string

const (
	DensityPerArea   DensityKind = "per_area"
	DensityPerLot    DensityKind = "per_lot"
	DensityCaretaker DensityKind = "caretaker"
	DensityNone      DensityKind = "none"
)

// Density is a parsed dwelling density descriptor.
//
// Grammar, case-insensitive and whitespace tolerant:
//
//	descriptor := per_area | per_lot | caretaker | none
//	per_area   := INT "per" NUMBER unit
//	unit       := "sqm" | "m2" | "m²" | "sq m" | "square metres"
//	per_lot    := INT "per lot"
//	caretaker  := "caretaker only" | "caretaker"
//	none       := "none" | "nil" | "not permitted"
type Density struct {
	Kind   DensityKind `json:"kind"`
	Raw    string      `json:"raw"`
	Units  int         `json:"units,omitempty"`
	PerSqm float64     `json:"per_sqm,omitempty"`
}

// descriptorAST is the grammar above. Input is lower-cased before lexing.
type descriptorAST struct {
	Caretaker bool     `  @"caretaker" "only"?`
	None      bool     `| @("none" | "nil" | "not" "permitted")`
	Rate      *rateAST `| @@`
}

type rateAST struct {
	Units string `@Number "per"`
	Lot   bool   `( @"lot"`
	Area  string `| @Number Unit )`
}

var densityLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `\d[\d,]*(?:\.\d+)?`},
	// units come before Word so "sq m" and "square metres" lex as one token
	{Name: "Unit", Pattern: `m²|m2|sqm|sq\.?\s*m\b|square\s+met(?:re|er)s?`},
	{Name: "Word", Pattern: `[a-z]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var densityParser = participle.MustBuild[descriptorAST](
	participle.Lexer(densityLexer),
	participle.Elide("Whitespace"),
)

// ParseDensity parses a descriptor. An empty descriptor returns nil and no
// error: the density is unknown, not restricted.
func ParseDensity(s string) (*Density, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, nil
	}
	ast, err := densityParser.ParseString("", strings.ToLower(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnparsableDensity, s, err)
	}

	d := &Density{Raw: raw}
	switch {
	case ast.Caretaker:
		d.Kind = DensityCaretaker
	case ast.None:
		d.Kind = DensityNone
	case ast.Rate != nil:
		units, err := strconv.Atoi(ast.Rate.Units)
		if err != nil || units < 1 {
			return nil, fmt.Errorf("%w: %q", ErrUnparsableDensity, s)
		}
		d.Units = units
		if ast.Rate.Lot {
			d.Kind = DensityPerLot
			break
		}
		per, err := strconv.ParseFloat(strings.ReplaceAll(ast.Rate.Area, ",", ""), 64)
		if err != nil || per <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnparsableDensity, s)
		}
		d.Kind, d.PerSqm = DensityPerArea, per
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnparsableDensity, s)
	}
	return d, nil
}

// PermitsDwelling reports whether the zone allows at least one dwelling.
func (d *Density) PermitsDwelling() bool {
	return d.Kind == DensityPerArea || d.Kind == DensityPerLot
}

// Dwellings returns the dwelling yield of a lot of the given area, before any
// minimum lot size check. Caretaker's accommodation is ancillary and does
// not count.
func (d *Density) Dwellings(areaSqm float64) int {
	switch d.Kind {
	case DensityPerArea:
		n := int(math.Floor(areaSqm/d.PerSqm)) * d.Units
		if n < 1 {
			n = 1
		}
		return n
	case DensityPerLot:
		return d.Units
	default:
		return 0
	}
}
