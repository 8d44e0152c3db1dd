// Package pdf renders kitchen sheets ("fiches cuisine") for reservations.
package pdf

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/iliyamo/fiche-cuisine/internal/model"
)

var sectionTitles = map[model.Category]string{
	model.CategoryStarter: "Entrées :",
	model.CategoryMain:    "Plats :",
	model.CategoryDessert: "Desserts :",
}

// ReservationFilename is the download name of a single sheet.
func ReservationFilename(r *model.Reservation) string {
	return fmt.Sprintf("fiche_%s_%s_%s.pdf", r.ServiceDate, strings.ReplaceAll(r.ClientName, " ", "_"), r.ID)
}

// DayFilename is the download name of the sheets of one service day.
func DayFilename(date string) string {
	return fmt.Sprintf("fiches_%s.pdf", date)
}

// RenderReservation writes the sheet of one reservation to w.
func RenderReservation(w io.Writer, r *model.Reservation) error {
	doc := newDocument()
	doc.sheet(r)
	return doc.Output(w)
}

// RenderDay writes one page per reservation of date to w. A day with no
// reservation yields a single page saying so.
func RenderDay(w io.Writer, date string, rows []model.Reservation) error {
	doc := newDocument()
	if len(rows) == 0 {
		doc.AddPage()
		doc.title("FICHE CUISINE – " + date)
		doc.line("Aucune réservation")
	}
	for i := range rows {
		doc.sheet(&rows[i])
	}
	return doc.Output(w)
}

type document struct {
	*fpdf.Fpdf
	tr func(string) string
}

func newDocument() *document {
	f := fpdf.New("P", "mm", "A4", "")
	f.SetMargins(13, 13, 13)
	f.SetAutoPageBreak(true, 13)
	return &document{Fpdf: f, tr: f.UnicodeTranslatorFromDescriptor("")}
}

func (d *document) sheet(r *model.Reservation) {
	d.AddPage()
	d.title("FICHE CUISINE – " + r.ServiceDate)
	d.line("Client : " + r.ClientName)
	d.line("Heure d’arrivée : " + r.ArrivalTime)
	d.line(fmt.Sprintf("Couverts : %d", r.Pax))
	d.Ln(4)

	byCat := model.ItemsByCategory(r.Items)
	for _, cat := range model.Categories {
		d.heading(sectionTitles[cat])
		items := byCat[cat]
		if len(items) == 0 {
			d.bullet("-")
		}
		for _, it := range items {
			d.bullet(fmt.Sprintf("- %dx %s", it.Quantity, it.Name))
		}
		d.Ln(3)
	}

	d.heading("Formule boissons :")
	d.bullet(r.DrinkFormula)
	d.Ln(3)

	d.heading("Notes :")
	if strings.TrimSpace(r.Notes) == "" {
		d.bullet("-")
		return
	}
	for _, l := range strings.Split(strings.ReplaceAll(r.Notes, "\r\n", "\n"), "\n") {
		d.bullet("- " + l)
	}
}

func (d *document) title(s string) {
	d.SetFont("Helvetica", "B", 16)
	d.CellFormat(0, 10, d.tr(s), "", 1, "L", false, 0, "")
	d.Ln(4)
}

func (d *document) heading(s string) {
	d.SetFont("Helvetica", "B", 12)
	d.CellFormat(0, 7, d.tr(s), "", 1, "L", false, 0, "")
}

func (d *document) line(s string) {
	d.SetFont("Helvetica", "", 11)
	d.MultiCell(0, 6, d.tr(s), "", "L", false)
}

func (d *document) bullet(s string) {
	d.SetFont("Helvetica", "", 11)
	d.SetX(d.GetX() + 4)
	d.MultiCell(0, 5.5, d.tr(s), "", "L", false)
}
