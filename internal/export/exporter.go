package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"formascrape/config"
	"formascrape/internal/normalize"
	"formascrape/internal/store"
	"formascrape/logger"
	apperr "formascrape/pkg/errors"
)

// Options are the per-invocation export filters.
type Options struct {
	CentersOnly  bool
	CreatedAfter *time.Time
	CleanOnly    bool
	TitleFilter  string
}

// Source is the persistence surface the exporter reads. *store.Store
// satisfies it.
type Source interface {
	MaxIDs(ctx context.Context) (int64, int64, error)
	CentersPage(ctx context.Context, afterID, maxID int64, limit int, createdAfter *time.Time, cleanOnly bool) ([]*store.Center, error)
	TrainingsPage(ctx context.Context, afterID, maxID int64, limit int, createdAfter *time.Time) ([]*store.Training, error)
	TrainingTitleIndex(ctx context.Context) ([]store.TitleRef, error)
}

// idRange is a half-open (lo, hi] id interval.
type idRange struct {
	lo, hi int64
}

func (r idRange) empty() bool { return r.hi <= r.lo }

func (r idRange) splittable() bool { return r.hi-r.lo > 1 }

// titleFilter restricts the export to trainings whose title contains the
// needle, and to the centers owning them. Nil means no filtering.
type titleFilter struct {
	trainings map[int64]bool
	centers   map[int64]bool
}

// Exporter renders the store into one or more xlsx workbooks. When a
// workbook would exceed the byte cap, the id ranges are bisected and each
// half exported on its own, recursively.
type Exporter struct {
	cfg *config.Config
	src Source
	log *logger.Logger
}

func New(cfg *config.Config, src Source) *Exporter {
	return &Exporter{
		cfg: cfg,
		src: src,
		log: logger.Get().WithField("component", "export"),
	}
}

// Run writes the export and returns the paths of the files produced.
func (e *Exporter) Run(ctx context.Context, opts Options) ([]string, error) {
	filter, err := e.buildTitleFilter(ctx, opts.TitleFilter)
	if err != nil {
		return nil, err
	}

	centerMax, trainingMax, err := e.src.MaxIDs(ctx)
	if err != nil {
		return nil, apperr.NewStorage("export", "max ids", err)
	}

	centers := idRange{0, centerMax}
	trainings := idRange{0, trainingMax}
	if opts.CentersOnly {
		trainings = idRange{}
	}

	var parts []*bytes.Buffer
	if err := e.export(ctx, opts, filter, centers, trainings, &parts); err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, apperr.NewValidation("export", "nothing to export")
	}

	return e.writeFiles(parts)
}

// export builds the workbook for one id range, bisecting when it exceeds
// the byte cap and the range can still be split.
func (e *Exporter) export(ctx context.Context, opts Options, filter *titleFilter, centers, trainings idRange, parts *[]*bytes.Buffer) error {
	buf, rows, err := e.buildWorkbook(ctx, opts, filter, centers, trainings)
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}

	if int64(buf.Len()) <= e.cfg.ExportMaxBytes || !(centers.splittable() || trainings.splittable()) {
		*parts = append(*parts, buf)
		return nil
	}

	e.log.Info().
		Int("bytes", buf.Len()).
		Int64("cap", e.cfg.ExportMaxBytes).
		Msg("Workbook over size cap, bisecting id ranges")

	cLeft, cRight := bisect(centers)
	tLeft, tRight := bisect(trainings)
	if err := e.export(ctx, opts, filter, cLeft, tLeft, parts); err != nil {
		return err
	}
	return e.export(ctx, opts, filter, cRight, tRight, parts)
}

func bisect(r idRange) (idRange, idRange) {
	if !r.splittable() {
		return r, idRange{}
	}
	mid := r.lo + (r.hi-r.lo)/2
	return idRange{r.lo, mid}, idRange{mid, r.hi}
}

func (e *Exporter) buildTitleFilter(ctx context.Context, needle string) (*titleFilter, error) {
	if needle == "" {
		return nil, nil
	}
	needle = strings.ToLower(normalize.StripAccents(needle))

	refs, err := e.src.TrainingTitleIndex(ctx)
	if err != nil {
		return nil, apperr.NewStorage("export", "title index", err)
	}

	f := &titleFilter{
		trainings: make(map[int64]bool),
		centers:   make(map[int64]bool),
	}
	for _, r := range refs {
		if strings.Contains(strings.ToLower(normalize.StripAccents(r.Title)), needle) {
			f.trainings[r.ID] = true
			f.centers[r.CenterID] = true
		}
	}
	return f, nil
}

func (e *Exporter) writeFiles(parts []*bytes.Buffer) ([]string, error) {
	if err := os.MkdirAll(e.cfg.ExportDir, 0o755); err != nil {
		return nil, apperr.NewStorage("export", "create export dir", err)
	}

	base := "formations_" + time.Now().Format("20060102_150405")
	var paths []string
	for i, buf := range parts {
		name := base + ".xlsx"
		if len(parts) > 1 {
			name = fmt.Sprintf("%s_part%02d.xlsx", base, i+1)
		}
		path := filepath.Join(e.cfg.ExportDir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return nil, apperr.NewStorage("export", "write workbook", err)
		}
		e.log.Info().Str("path", path).Int("bytes", buf.Len()).Msg("Workbook written")
		paths = append(paths, path)
	}
	return paths, nil
}
