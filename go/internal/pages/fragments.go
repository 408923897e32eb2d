package pages

import (
	"fmt"
	"html"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/mcdev12/scoresync/go/internal/decimal"
	"github.com/mcdev12/scoresync/go/internal/models"
)

// TrendFragment renders the live score header. Nil values render as blanks.
func TrendFragment(score *decimal.Decimal, rank *uint16) string {
	var b strings.Builder
	b.WriteString(`<div class="trend">`)
	if score != nil {
		fmt.Fprintf(&b, `<span class="score">%s%%</span>`, score.Round(3, apd.RoundHalfUp).String())
	} else {
		b.WriteString(`<span class="score">-</span>`)
	}
	if rank != nil {
		fmt.Fprintf(&b, `<span class="rank">%d</span>`, *rank)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func LockFragment(sheet *models.Scoresheet) string {
	if sheet.Locked {
		return fmt.Sprintf(`<div class="lock locked" data-sheet="%s">Locked</div>`, html.EscapeString(sheet.ID))
	}
	return fmt.Sprintf(`<div class="lock" data-sheet="%s"></div>`, html.EscapeString(sheet.ID))
}

func AlertFragment(sheetID, text string) string {
	return fmt.Sprintf(`<div class="alert" data-sheet="%s">%s</div>`, html.EscapeString(sheetID), html.EscapeString(text))
}

func StarterFragment(s *models.Starter) string {
	return fmt.Sprintf(`<li data-starter="%s"><span class="number">%d</span> %s <span class="horse">%s</span> <span class="status">%s</span></li>`,
		html.EscapeString(s.ID), s.Number, html.EscapeString(s.Name()), html.EscapeString(s.Competitor.HorseName), html.EscapeString(string(s.Status.Kind)))
}

func PenaltiesFragment(sheet *models.Scoresheet) string {
	return fmt.Sprintf(`<div class="penalties"><span class="errors">%d</span><span class="technical">%d</span><span class="artistic">%d</span></div>`,
		sheet.Errors, sheet.TechPenalties, sheet.ArtPenalties)
}

func MarkFragment(number uint16, mark *decimal.Decimal) string {
	value := ""
	if mark != nil {
		value = mark.String()
	}
	return fmt.Sprintf(`<td data-index="%d" class="mark">%s</td>`, number, value)
}
