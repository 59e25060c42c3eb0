package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Attention flag vocabulary.
const (
	AttentionConfirmDateDiff = "R1"
	AttentionConfirmQtyDiff  = "R2"
	AttentionStockDiff       = "R3"
	AttentionConflictingETD  = "R4"
	AttentionPlanRejected    = "R5"
	// AttentionDeliveryStockDiff is raised by goods-issue reconciliation when
	// both DTR and DTP fail. It is reported under the stock-diff category.
	AttentionDeliveryStockDiff = "C3"
)

const attentionSeparator = ", "

type AttentionSeverity string

const (
	AttentionSeverityLow    AttentionSeverity = "Low"
	AttentionSeverityMedium AttentionSeverity = "Medium"
	AttentionSeverityHigh   AttentionSeverity = "High"
)

type AttentionFlagDef struct {
	Code        string            `json:"code"`
	Category    string            `json:"category"`
	Severity    AttentionSeverity `json:"severity"`
	Description string            `json:"description"`
}

var attentionFlagDefs = map[string]AttentionFlagDef{
	AttentionConfirmDateDiff:   {Code: AttentionConfirmDateDiff, Category: AttentionConfirmDateDiff, Severity: AttentionSeverityMedium, Description: "Confirm date diff"},
	AttentionConfirmQtyDiff:    {Code: AttentionConfirmQtyDiff, Category: AttentionConfirmQtyDiff, Severity: AttentionSeverityMedium, Description: "Confirm qty diff"},
	AttentionStockDiff:         {Code: AttentionStockDiff, Category: AttentionStockDiff, Severity: AttentionSeverityHigh, Description: "Stock diff"},
	AttentionConflictingETD:    {Code: AttentionConflictingETD, Category: AttentionConflictingETD, Severity: AttentionSeverityLow, Description: "Conflicting ETD"},
	AttentionPlanRejected:      {Code: AttentionPlanRejected, Category: AttentionPlanRejected, Severity: AttentionSeverityHigh, Description: "Rejected by planning/ERP"},
	AttentionDeliveryStockDiff: {Code: AttentionDeliveryStockDiff, Category: AttentionStockDiff, Severity: AttentionSeverityHigh, Description: "DTR/DTP not pass"},
}

func AttentionFlagDefinition(code string) (AttentionFlagDef, bool) {
	def, ok := attentionFlagDefs[strings.TrimSpace(code)]
	return def, ok
}

func IsAttentionFlag(code string) bool {
	_, ok := attentionFlagDefs[strings.TrimSpace(code)]
	return ok
}

// AttentionSet is the set of attention flags on an order line. It is stored
// and exposed as the canonical sorted string "R1, R3".
type AttentionSet map[string]struct{}

// ParseAttentionSet reads both "R1, R2" and legacy "R1,R2" forms.
func ParseAttentionSet(raw string) AttentionSet {
	set := AttentionSet{}
	for _, part := range strings.Split(raw, ",") {
		if code := strings.TrimSpace(part); code != "" {
			set[code] = struct{}{}
		}
	}
	return set
}

func (s AttentionSet) Has(code string) bool {
	_, ok := s[strings.TrimSpace(code)]
	return ok
}

func (s AttentionSet) Len() int { return len(s) }

func (s AttentionSet) Codes() []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s AttentionSet) String() string {
	return strings.Join(s.Codes(), attentionSeparator)
}

// With returns a new set holding s plus every known code in flags.
// Unknown or blank codes are ignored so the column never becomes free-form.
func (s AttentionSet) With(flags ...string) AttentionSet {
	out := make(AttentionSet, len(s)+len(flags))
	for code := range s {
		out[code] = struct{}{}
	}
	for _, f := range flags {
		if code := strings.TrimSpace(f); IsAttentionFlag(code) {
			out[code] = struct{}{}
		}
	}
	return out
}

// Without returns a new set holding s minus flags.
func (s AttentionSet) Without(flags ...string) AttentionSet {
	out := make(AttentionSet, len(s))
	for code := range s {
		out[code] = struct{}{}
	}
	for _, f := range flags {
		delete(out, strings.TrimSpace(f))
	}
	return out
}

// Definitions returns the vocabulary entry of every code in s, in code order.
func (s AttentionSet) Definitions() []AttentionFlagDef {
	defs := make([]AttentionFlagDef, 0, len(s))
	for _, code := range s.Codes() {
		if def, ok := attentionFlagDefs[code]; ok {
			defs = append(defs, def)
		}
	}
	return defs
}

func (s AttentionSet) Equal(other AttentionSet) bool {
	return s.String() == other.String()
}

func (s AttentionSet) GormDataType() string {
	return "string"
}

func (s AttentionSet) Value() (driver.Value, error) {
	return s.String(), nil
}

func (s *AttentionSet) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = AttentionSet{}
	case []byte:
		*s = ParseAttentionSet(string(v))
	case string:
		*s = ParseAttentionSet(v)
	default:
		return fmt.Errorf("cannot scan %T into AttentionSet", value)
	}
	return nil
}

func (s AttentionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AttentionSet) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseAttentionSet(raw)
	return nil
}

// AddFlags unions flags into the line's attention set.
func AddFlags(line *OrderLine, flags []string) {
	if line == nil {
		return
	}
	line.AttentionType = line.AttentionType.With(flags...)
}

// RemoveFlags subtracts flags from the line's attention set. An empty set
// stays empty.
func RemoveFlags(line *OrderLine, flags []string) {
	if line == nil || line.AttentionType.Len() == 0 {
		return
	}
	line.AttentionType = line.AttentionType.Without(flags...)
}
