package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var reDigits = regexp.MustCompile(`^\d+$`)

var requiredColumns = []string{"sNo", "productName", "inputImageUrls"}

// Camelize turns a header like "Input Image Urls" into "inputImageUrls".
// Headers already in camelCase are kept.
func Camelize(header string) string {
	var words []string
	for _, f := range strings.FieldsFunc(header, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words = append(words, splitCamel(f)...)
	}
	var b strings.Builder
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		if i > 0 {
			rs[0] = unicode.ToUpper(rs[0])
		}
		b.WriteString(string(rs))
	}
	return b.String()
}

func splitCamel(s string) []string {
	var out []string
	start := 0
	rs := []rune(s)
	for i := 1; i < len(rs); i++ {
		if unicode.IsLower(rs[i-1]) && unicode.IsUpper(rs[i]) {
			out = append(out, string(rs[start:i]))
			start = i
		}
	}
	return append(out, string(rs[start:]))
}

// Ingestor turns an uploaded CSV into a stored batch and hands it to the
// dispatcher.
type Ingestor struct {
	Store      RowStore
	Dispatcher Dispatcher
	Log        zerolog.Logger

	validate *validator.Validate
	newID    func() string
}

func NewIngestor(store RowStore, d Dispatcher, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		Store:      store,
		Dispatcher: d,
		Log:        logger,
		validate:   validator.New(),
		newID:      uuid.NewString,
	}
}

// Ingest validates every row before anything is written. It returns the new
// batch id as soon as the batch is dispatched.
func (in *Ingestor) Ingest(ctx context.Context, r io.Reader) (string, error) {
	rows, err := in.ParseRows(r)
	if err != nil {
		return "", err
	}

	batchID := in.newID()
	for i := range rows {
		rows[i].ID = in.newID()
		rows[i].BatchID = batchID
		rows[i].Status = models.StatusProcessing
		rows[i].OutputImageURLs = []string{}
	}
	if err := in.Store.CreateRows(ctx, rows); err != nil {
		return "", fmt.Errorf("create rows: %w", err)
	}
	in.Log.Info().Str("batch_id", batchID).Int("rows", len(rows)).Msg("batch created")

	if err := in.Dispatcher.Dispatch(ctx, batchID); err != nil {
		return batchID, fmt.Errorf("dispatch batch %s: %w", batchID, err)
	}
	return batchID, nil
}

// ParseRows reads and validates the CSV. The first line is the header.
func (in *Ingestor) ParseRows(r io.Reader) ([]models.Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ValidationError{Field: "file", Message: "file is empty"}
	}
	if err != nil {
		return nil, csvError(err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[Camelize(h)] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, &ValidationError{Line: 1, Field: c, Message: fmt.Sprintf("missing column %q", Humanize(c))}
		}
	}

	var rows []models.Row
	seen := make(map[int]int)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		line, _ := cr.FieldPos(0)

		row, err := in.parseRecord(rec, cols, line)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[row.SequenceNumber]; dup {
			return nil, &ValidationError{Line: line, Field: "sNo", Message: fmt.Sprintf("duplicate value %d (first on line %d)", row.SequenceNumber, prev)}
		}
		seen[row.SequenceNumber] = line
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, &ValidationError{Field: "file", Message: "no data rows"}
	}
	return rows, nil
}

func (in *Ingestor) parseRecord(rec []string, cols map[string]int, line int) (models.Row, error) {
	get := func(name string) string {
		if i := cols[name]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	sNo := get("sNo")
	if !reDigits.MatchString(sNo) {
		return models.Row{}, &ValidationError{Line: line, Field: "sNo", Message: "must contain digits only"}
	}
	n, err := strconv.Atoi(sNo)
	if err != nil {
		return models.Row{}, &ValidationError{Line: line, Field: "sNo", Message: err.Error()}
	}

	name := get("productName")
	if name == "" {
		return models.Row{}, &ValidationError{Line: line, Field: "productName", Message: "must not be empty"}
	}

	var urls []string
	for _, u := range strings.Split(get("inputImageUrls"), ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if err := in.checkURL(u); err != nil {
			return models.Row{}, &ValidationError{Line: line, Field: "inputImageUrls", Message: fmt.Sprintf("invalid url %q: %v", u, err)}
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return models.Row{}, &ValidationError{Line: line, Field: "inputImageUrls", Message: "at least one url is required"}
	}

	return models.Row{SequenceNumber: n, ProductName: name, SourceImageURLs: urls}, nil
}

func (in *Ingestor) checkURL(raw string) error {
	if err := in.validate.Var(raw, "required,url"); err != nil {
		return errors.New("not a valid url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ValidationError{Line: pe.Line, Field: "file", Message: pe.Err.Error()}
	}
	return &ValidationError{Field: "file", Message: err.Error()}
}
