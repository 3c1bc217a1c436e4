// Package mapper routes a classifier label to the bin, instructions and point
// value of the material it names.
//
// Lookup is an exact match on the normalized label first, then a substring
// match in either direction against the table keys. Substring candidates are
// not ranked: the first entry in declaration order wins, so the order of
// DefaultTable is part of its contract.
package mapper

import (
	"strings"

	"github.com/menta2k/ecorecycle/pkg/types"
)

// Entry is one material of the table with all the labels that name it
type Entry struct {
	Keys    []string
	Mapping types.RecyclingMapping
}

const (
	BinBlue  = "Azul (Aprovechables)"
	BinGray  = "Gris (Aprovechables)"
	BinWhite = "Blanco (Aprovechables)"
	BinGreen = "Verde (Orgánicos)"
	BinBlack = "Negro (No aprovechables)"
)

// Unidentified is returned for labels that match nothing
var Unidentified = types.RecyclingMapping{
	Key:           "no identificado",
	DisplayName:   "No identificado",
	BinLabel:      BinBlack,
	BinColorToken: "bg-gray-400",
	Instructions:  "No pudimos identificar el objeto. Si tienes dudas, deposítalo en la caneca negra.",
	PointValue:    0,
}

// DefaultTable is the built-in material table
var DefaultTable = []Entry{
	{
		Keys: []string{"botella de plástico", "plástico", "plastico", "plastic"},
		Mapping: types.RecyclingMapping{
			Key: "plástico", DisplayName: "Plástico", BinLabel: BinBlue, BinColorToken: "bg-blue-500-bin",
			Instructions: "Lava la botella y retira la tapa antes de depositarla en la caneca azul.",
			PointValue:   5,
		},
	},
	{
		Keys: []string{"lata de aluminio", "metal", "aluminio", "aluminum", "lata"},
		Mapping: types.RecyclingMapping{
			Key: "metal", DisplayName: "Metal", BinLabel: BinBlue, BinColorToken: "bg-blue-500-bin",
			Instructions: "Lava la lata y deposítala en la caneca azul para reciclaje.",
			PointValue:   4,
		},
	},
	{
		Keys: []string{"papel", "paper"},
		Mapping: types.RecyclingMapping{
			Key: "papel", DisplayName: "Papel", BinLabel: BinGray, BinColorToken: "bg-gray-500",
			Instructions: "Asegúrate de que esté limpio y seco. Deposítalo en la caneca gris.",
			PointValue:   3,
		},
	},
	{
		Keys: []string{"cartón", "carton", "cardboard"},
		Mapping: types.RecyclingMapping{
			Key: "cartón", DisplayName: "Cartón", BinLabel: BinGray, BinColorToken: "bg-gray-500",
			Instructions: "Desármalo, asegúrate de que esté limpio y seco y deposítalo en la caneca gris.",
			PointValue:   3,
		},
	},
	{
		Keys: []string{"botella vidrio", "vidrio", "glass"},
		Mapping: types.RecyclingMapping{
			Key: "vidrio", DisplayName: "Vidrio", BinLabel: BinWhite, BinColorToken: "bg-white-bin",
			Instructions: "Lava el vidrio y deposítalo en la caneca blanca.",
			PointValue:   4,
		},
	},
	{
		Keys: []string{"residuo orgánico", "orgánico", "organico", "organic", "biological", "food"},
		Mapping: types.RecyclingMapping{
			Key: "orgánico", DisplayName: "Orgánico", BinLabel: BinGreen, BinColorToken: "bg-green-500-bin",
			Instructions: "Perfecto para compostaje. Deposítalo en la caneca verde.",
			PointValue:   2,
		},
	},
	{
		Keys: []string{"residuo no reciclable", "no reciclable", "trash", "basura"},
		Mapping: types.RecyclingMapping{
			Key: "no reciclable", DisplayName: "Residuo no reciclable", BinLabel: BinBlack, BinColorToken: "bg-black",
			Instructions: "Este residuo no es reciclable. Deposítalo en la caneca negra.",
			PointValue:   0,
		},
	},
}

// Mapper resolves labels against a material table
type Mapper struct {
	entries  []Entry
	exact    map[string]types.RecyclingMapping
	fallback types.RecyclingMapping
}

// New creates a Mapper over DefaultTable
func New() *Mapper {
	return NewWithTable(DefaultTable)
}

// NewWithTable creates a Mapper over a custom table. Negative point values are
// clamped to zero.
func NewWithTable(entries []Entry) *Mapper {
	m := &Mapper{
		entries:  make([]Entry, 0, len(entries)),
		exact:    make(map[string]types.RecyclingMapping),
		fallback: Unidentified,
	}
	for _, e := range entries {
		if e.Mapping.PointValue < 0 {
			e.Mapping.PointValue = 0
		}
		keys := make([]string, 0, len(e.Keys))
		for _, k := range e.Keys {
			k = Normalize(k)
			if k == "" {
				continue
			}
			keys = append(keys, k)
			// first declaration wins on duplicate keys
			if _, ok := m.exact[k]; !ok {
				m.exact[k] = e.Mapping
			}
		}
		m.entries = append(m.entries, Entry{Keys: keys, Mapping: e.Mapping})
	}
	return m
}

// Map resolves a raw classifier label. It never fails: labels that match no
// key return the Unidentified mapping.
func (m *Mapper) Map(rawLabel string) types.RecyclingMapping {
	label := Normalize(rawLabel)
	if label == "" {
		return m.fallback
	}
	if mapping, ok := m.exact[label]; ok {
		return mapping
	}
	for _, e := range m.entries {
		for _, k := range e.Keys {
			if strings.Contains(label, k) || strings.Contains(k, label) {
				return e.Mapping
			}
		}
	}
	return m.fallback
}

// Lookup returns the mapping for an exact (normalized) key
func (m *Mapper) Lookup(key string) (types.RecyclingMapping, bool) {
	mapping, ok := m.exact[Normalize(key)]
	return mapping, ok
}

// Entries returns the table in declaration order
func (m *Mapper) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Normalize lowercases a label, trims it and turns separators into spaces
func Normalize(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}
