package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	apperr "formascrape/pkg/errors"
)

const (
	sheetCenters   = "Centres"
	sheetTrainings = "Formations"
	sheetRegions   = "Régions"

	// French-style money and date display.
	moneyFormat = `#,##0.00\ "€"`
	dateFormat  = "dd/mm/yyyy hh:mm"
)

var centerHeaders = []any{
	"ID", "Nom", "SIREN", "SIRET", "Ville", "Code postal", "Région", "Pays",
	"Email", "Téléphone", "Site web", "Stagiaires", "Stagiaires confiés",
	"Formateurs", "Début exercice", "Créé le",
}

var trainingHeaders = []any{
	"ID", "Centre", "Titre", "Lieu", "Région", "Prix", "Durée (h)",
	"Modalité", "Certification", "Recherche", "Lien", "Créé le",
}

var regionHeaders = []any{"Région", "Centres", "Formations"}

type regionCount struct {
	centers   int
	trainings int
}

// buildWorkbook renders one workbook covering the given id ranges and
// returns its bytes plus the number of data rows written.
func (e *Exporter) buildWorkbook(ctx context.Context, opts Options, filter *titleFilter, centers, trainings idRange) (*bytes.Buffer, int, error) {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newStyles(f)
	if err != nil {
		return nil, 0, apperr.NewStorage("export", "workbook styles", err)
	}

	regions := make(map[string]*regionCount)
	centerNames := make(map[int64]string)

	rows := 0
	n, err := e.writeCenters(ctx, f, styles, opts, filter, centers, regions, centerNames)
	if err != nil {
		return nil, 0, err
	}
	rows += n

	if !opts.CentersOnly && !trainings.empty() {
		n, err = e.writeTrainings(ctx, f, styles, opts, filter, trainings, regions, centerNames)
		if err != nil {
			return nil, 0, err
		}
		rows += n
	}

	writeRegions(f, styles, regions)

	// The default sheet excelize creates is replaced by ours.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, 0, apperr.NewStorage("export", "drop default sheet", err)
	}
	if idx, err := f.GetSheetIndex(sheetCenters); err == nil {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, apperr.NewStorage("export", "serialize workbook", err)
	}
	return buf, rows, nil
}

type workbookStyles struct {
	header int
	money  int
	date   int
	link   int
}

func newStyles(f *excelize.File) (workbookStyles, error) {
	var s workbookStyles
	var err error

	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	}); err != nil {
		return s, err
	}
	money := moneyFormat
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &money}); err != nil {
		return s, err
	}
	date := dateFormat
	if s.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &date}); err != nil {
		return s, err
	}
	if s.link, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "0563C1", Underline: "single"},
	}); err != nil {
		return s, err
	}
	return s, nil
}

func newSheet(f *excelize.File, name string, headers []any, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	if err := f.SetSheetRow(name, "A1", &headers); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(name, "A1", last, headerStyle)
}

func (e *Exporter) writeCenters(ctx context.Context, f *excelize.File, styles workbookStyles, opts Options, filter *titleFilter, r idRange, regions map[string]*regionCount, centerNames map[int64]string) (int, error) {
	if err := newSheet(f, sheetCenters, centerHeaders, styles.header); err != nil {
		return 0, apperr.NewStorage("export", "centers sheet", err)
	}

	row := 1
	afterID := r.lo
	for {
		page, err := e.src.CentersPage(ctx, afterID, r.hi, e.cfg.DBPageSize, opts.CreatedAfter, opts.CleanOnly)
		if err != nil {
			return 0, apperr.NewStorage("export", "read centers", err)
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		for _, c := range page {
			if filter != nil && !filter.centers[c.ID] {
				continue
			}
			row++
			centerNames[c.ID] = c.Name
			bumpRegion(regions, c.Region).centers++

			cell := fmt.Sprintf("A%d", row)
			if err := f.SetSheetRow(sheetCenters, cell, &[]any{
				c.ID, c.Name, c.Siren, c.Siret, c.City, c.PostalCode, c.Region,
				c.Country, c.Email, c.Phone, c.Website,
				orNil(c.DeclaredTrainees), orNil(c.DelegatedTrainees), orNil(c.DeclaredTrainers),
				c.FiscalYearStart, c.CreatedAt,
			}); err != nil {
				return 0, apperr.NewStorage("export", "write center row", err)
			}
			if c.Website != "" {
				linkCell := fmt.Sprintf("K%d", row)
				if err := f.SetCellHyperLink(sheetCenters, linkCell, c.Website, "External"); err == nil {
					f.SetCellStyle(sheetCenters, linkCell, linkCell, styles.link)
				}
			}
		}
	}

	if row > 1 {
		f.SetCellStyle(sheetCenters, "P2", fmt.Sprintf("P%d", row), styles.date)
	}
	return row - 1, nil
}

func (e *Exporter) writeTrainings(ctx context.Context, f *excelize.File, styles workbookStyles, opts Options, filter *titleFilter, r idRange, regions map[string]*regionCount, centerNames map[int64]string) (int, error) {
	if err := newSheet(f, sheetTrainings, trainingHeaders, styles.header); err != nil {
		return 0, apperr.NewStorage("export", "trainings sheet", err)
	}

	row := 1
	afterID := r.lo
	for {
		page, err := e.src.TrainingsPage(ctx, afterID, r.hi, e.cfg.DBPageSize, opts.CreatedAfter)
		if err != nil {
			return 0, apperr.NewStorage("export", "read trainings", err)
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		for _, t := range page {
			if filter != nil && !filter.trainings[t.ID] {
				continue
			}
			row++
			bumpRegion(regions, t.Region).trainings++

			cell := fmt.Sprintf("A%d", row)
			if err := f.SetSheetRow(sheetTrainings, cell, &[]any{
				t.ID, centerNames[t.CenterID], t.Title, t.Location, t.Region,
				orNil(t.Price), orNil(t.DurationHours), t.Modality, t.Certification,
				t.QueryName, t.DetailURL, t.CreatedAt,
			}); err != nil {
				return 0, apperr.NewStorage("export", "write training row", err)
			}
			if t.DetailURL != "" {
				linkCell := fmt.Sprintf("K%d", row)
				if err := f.SetCellHyperLink(sheetTrainings, linkCell, t.DetailURL, "External"); err == nil {
					f.SetCellStyle(sheetTrainings, linkCell, linkCell, styles.link)
				}
			}
		}
	}

	if row > 1 {
		f.SetCellStyle(sheetTrainings, "F2", fmt.Sprintf("F%d", row), styles.money)
		f.SetCellStyle(sheetTrainings, "L2", fmt.Sprintf("L%d", row), styles.date)
	}
	return row - 1, nil
}

func writeRegions(f *excelize.File, styles workbookStyles, regions map[string]*regionCount) {
	if err := newSheet(f, sheetRegions, regionHeaders, styles.header); err != nil {
		return
	}

	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		label := name
		if label == "" {
			label = "(inconnue)"
		}
		counts := regions[name]
		cell := fmt.Sprintf("A%d", i+2)
		f.SetSheetRow(sheetRegions, cell, &[]any{label, counts.centers, counts.trainings})
	}
}

func bumpRegion(regions map[string]*regionCount, name string) *regionCount {
	rc, ok := regions[name]
	if !ok {
		rc = &regionCount{}
		regions[name] = rc
	}
	return rc
}

// orNil maps nullable columns to empty cells instead of zeroes.
func orNil[T int64 | float64](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
