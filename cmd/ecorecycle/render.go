package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/menta2k/ecorecycle"
	"github.com/menta2k/ecorecycle/internal/utils"
	"github.com/menta2k/ecorecycle/pkg/points"
	"github.com/menta2k/ecorecycle/pkg/types"
)

var (
	heading = color.New(color.Bold)
	success = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	muted   = color.New(color.Faint)
)

// binColor picks a terminal color for a bin color token
func binColor(token string) *color.Color {
	switch {
	case strings.Contains(token, "blue"):
		return color.New(color.FgBlue, color.Bold)
	case strings.Contains(token, "green"):
		return color.New(color.FgGreen, color.Bold)
	case strings.Contains(token, "white"):
		return color.New(color.FgHiWhite, color.Bold)
	case strings.Contains(token, "black"):
		return color.New(color.FgHiBlack, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func printError(format string, args ...any) {
	failure.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printScan(src string, res *ecorecycle.ScanResult) {
	m := res.Mapping
	c := res.Photo.Classification

	label := m.DisplayName
	if res.Simulated {
		label += muted.Sprint(" (simulado)")
	}
	fmt.Printf("\n%s %s\n", heading.Sprint("📷"), src)
	fmt.Printf("  Material:    %s (%.0f%%)\n", label, c.Confidence*100)
	fmt.Printf("  Contenedor:  %s\n", binColor(m.BinColorToken).Sprint(m.BinLabel))
	fmt.Printf("  Cómo:        %s\n", m.Instructions)
	if m.Recyclable() {
		fmt.Printf("  Puntos:      %s\n", success.Sprintf("+%d", m.PointValue))
	} else {
		fmt.Printf("  Puntos:      %s\n", muted.Sprint("0"))
	}
	if len(c.Tags) > 0 {
		fmt.Printf("  Etiquetas:   %s\n", strings.Join(c.Tags, ", "))
	}
	if res.CanExchange {
		success.Println("  Quiz desbloqueado")
	} else {
		fmt.Printf("  Faltan %d fotos para el quiz\n", res.Remaining)
	}
}

func printStatistics(s types.Statistics) {
	fmt.Println()
	heading.Println("Resumen")
	fmt.Printf("  Objetos reciclados: %d\n", s.TotalRecycled)
	fmt.Printf("  Puntos acumulados:  %d\n", s.LifetimePoints)
	fmt.Printf("  CO₂ evitado:        %.1f kg\n", s.CO2AvoidedKg)
	fmt.Printf("  Promedio por objeto: %d\n", s.AveragePoints)
}

func printQuizResult(questions []types.QuizQuestion, r types.QuizResult) {
	fmt.Println()
	for i, q := range questions {
		out := r.PerQuestion[i]
		mark := failure.Sprint("✗")
		if out.IsCorrect {
			mark = success.Sprint("✓")
		}
		fmt.Printf("%s %s\n", mark, q.Text)
		if !out.IsCorrect {
			fmt.Printf("    Respuesta: %s\n", q.Options[q.CorrectOptionIndex])
		}
		if q.Explanation != "" {
			muted.Printf("    %s\n", q.Explanation)
		}
	}
	fmt.Printf("\n%d/%d correctas, %s\n", r.CorrectCount, len(questions),
		success.Sprintf("+%d puntos", r.BonusPoints))
}

func printPoints(email string, s types.PointsState, pending int) {
	fmt.Printf("%s %s\n", heading.Sprint("Usuario:"), email)
	fmt.Printf("  Saldo:     %s\n", success.Sprintf("%d pts", s.Balance))
	fmt.Printf("  Acumulado: %d pts\n", s.LifetimeTotal)
	if pending > 0 {
		warning.Printf("  Pendiente: %d pts sin sincronizar\n", pending)
	}
	if !s.FetchedAt.IsZero() {
		muted.Printf("  Actualizado %s\n", humanize.Time(s.FetchedAt))
	}
}

func printRewards(balance int, views []ecorecycle.RewardView) {
	heading.Printf("Premios (saldo: %d pts)\n", balance)
	if len(views) == 0 {
		fmt.Println("  No hay premios disponibles")
		return
	}
	for _, v := range views {
		c := success
		switch v.Availability {
		case points.OutOfStock:
			c = failure
		case points.NeedsPoints:
			c = warning
		}
		partner := ""
		if v.Partner != "" {
			partner = muted.Sprintf(" · %s", v.Partner)
		}
		fmt.Printf("  [%d] %-28s %5d pts  stock %-3d %s%s\n",
			v.ID, v.Name, v.RequiredPoints, v.Stock, c.Sprint(v.Availability), partner)
	}
}

func printHistory(entries []types.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Println("Sin movimientos")
		return
	}
	for _, e := range entries {
		c := success
		if e.Delta < 0 {
			c = failure
		}
		when := "sin fecha"
		if !e.Date.IsZero() {
			when = humanize.Time(e.Date)
		}
		fmt.Printf("  %-6s %-9s %s %s\n", c.Sprint(e.Badge()), e.Kind, e.Detail, muted.Sprint(when))
	}
}

func printRecords(recs []types.RecyclingRecord) {
	if len(recs) == 0 {
		fmt.Println("No records saved")
		return
	}
	for _, r := range recs {
		image := ""
		if r.ImageFilename != "" {
			image = " " + r.ImageFilename
			if utils.FileExists(r.ImageFilename) {
				if info, err := os.Stat(r.ImageFilename); err == nil {
					image += " (" + utils.FormatFileSize(info.Size()) + ")"
				}
			}
		}
		fmt.Printf("  %s  %-22s %-26s %3d pts%s  %s\n",
			muted.Sprint(shortID(r.ID)), r.Item, binColor(binToken(r.Bin)).Sprint(r.Bin), r.Points, image,
			muted.Sprint(humanize.Time(r.CreatedAt)))
	}
}

// writeRecordsJSON exports records in the backend's record format
func writeRecordsJSON(w io.Writer, recs []types.RecyclingRecord) error {
	if recs == nil {
		recs = []types.RecyclingRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func binToken(bin string) string {
	switch {
	case strings.HasPrefix(bin, "Azul"):
		return "blue"
	case strings.HasPrefix(bin, "Verde"):
		return "green"
	case strings.HasPrefix(bin, "Blanco"):
		return "white"
	case strings.HasPrefix(bin, "Negro"):
		return "black"
	}
	return ""
}

func printNotices(notices []types.Notice) {
	if len(notices) == 0 {
		return
	}
	fmt.Println()
	// oldest first reads naturally on a terminal
	for i := len(notices) - 1; i >= 0; i-- {
		n := notices[i]
		switch n.Level {
		case types.NoticeSuccess:
			success.Println("• " + n.Message)
		case types.NoticeWarning:
			warning.Println("• " + n.Message)
		case types.NoticeError:
			failure.Println("• " + n.Message)
		default:
			fmt.Println("• " + n.Message)
		}
	}
}
