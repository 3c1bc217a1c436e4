package points

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/ecorecycle/pkg/types"
)

var (
	scanDeltaRe       = regexp.MustCompile(`(?i)\+(\d+)\s*puntos?`)
	redemptionDeltaRe = regexp.MustCompile(`(?i)gast[oó]\s+(\d+)\s*pts`)
	signedNumberRe    = regexp.MustCompile(`([+-]?\d+)`)
)

var historyDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// History fetches the ledger, newest first. Entries with a structured delta
// use it as is; the others fall back to parsing the free-text detail.
func (c *Client) History(ctx context.Context) ([]types.HistoryEntry, error) {
	if c.email == "" {
		return nil, ErrNoUser
	}
	raw, err := c.backend.History(ctx, c.email)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return NormalizeHistory(raw), nil
}

// NormalizeHistory converts raw ledger lines and sorts them newest first
func NormalizeHistory(raw []types.RawHistoryEntry) []types.HistoryEntry {
	entries := make([]types.HistoryEntry, 0, len(raw))
	for _, r := range raw {
		kind := kindOf(r.Action)
		var delta int
		if r.Delta != nil {
			delta = *r.Delta
		} else {
			delta = ParseDelta(kind, r.Detail)
		}
		detail := r.Detail
		if detail == "" {
			detail = defaultDetail(kind)
		}
		entries = append(entries, types.HistoryEntry{
			Kind:   kind,
			Detail: detail,
			Delta:  delta,
			Date:   parseHistoryDate(r.Date),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries
}

// ParseDelta reads the signed point change out of a ledger detail such as
// "+5 puntos por reciclaje" or "Gastó 150 pts por: Entrada cine".
func ParseDelta(kind types.HistoryKind, detail string) int {
	if detail == "" {
		return 0
	}
	switch kind {
	case types.HistoryScan:
		if m := scanDeltaRe.FindStringSubmatch(detail); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n
		}
		return 0
	case types.HistoryRedemption:
		if m := redemptionDeltaRe.FindStringSubmatch(detail); m != nil {
			n, _ := strconv.Atoi(m[1])
			return -n
		}
		return 0
	}
	if m := signedNumberRe.FindStringSubmatch(detail); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func kindOf(action string) types.HistoryKind {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case string(types.HistoryScan):
		return types.HistoryScan
	case string(types.HistoryRedemption):
		return types.HistoryRedemption
	default:
		return types.HistoryOther
	}
}

func defaultDetail(kind types.HistoryKind) string {
	switch kind {
	case types.HistoryScan:
		return "Puntos por reciclaje"
	case types.HistoryRedemption:
		return "Puntos gastados en canje"
	default:
		return "Actividad"
	}
}

// parseHistoryDate returns the zero time for dates it cannot read
func parseHistoryDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range historyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
