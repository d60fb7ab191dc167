package question

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

type ImportRowError struct {
	Row           int    `json:"row"`
	DisplayNumber string `json:"display_number,omitempty"`
	Error         string `json:"error"`
}

type ImportReport struct {
	TotalRows     int              `json:"total_rows"`
	CreatedRows   int              `json:"created_rows"`
	UpdatedRows   int              `json:"updated_rows"`
	FailedRows    int              `json:"failed_rows"`
	DuplicateRows int              `json:"duplicate_rows"`
	Errors        []ImportRowError `json:"errors"`
	Duplicates    []string         `json:"duplicates,omitempty"`
}

var exportHeaders = []string{
	"display_number", "license_class", "question_text",
	"option_a", "option_b", "option_c", "option_d",
	"correct_answer", "explanation", "figure_ref", "is_active",
}

// ExportExcel writes the question pool (optionally one license class) to a
// spreadsheet in the same column layout ImportExcel expects.
func (s *Service) ExportExcel(ctx context.Context, licenseClass string) ([]byte, error) {
	items, err := s.List(ctx, ListFilter{LicenseClass: licenseClass, Limit: 5000})
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, q := range items {
		row := i + 2
		explanation := ""
		if q.Explanation != nil {
			explanation = *q.Explanation
		}
		figureRef := ""
		if q.FigureRef != nil {
			figureRef = *q.FigureRef
		}
		values := []any{
			q.DisplayNumber,
			q.LicenseClass,
			q.QuestionText,
			q.OptionA, q.OptionB, q.OptionC, q.OptionD,
			q.CorrectAnswer,
			explanation,
			figureRef,
			q.IsActive,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "K", 28)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportExcel loads a question pool spreadsheet row by row. Existing
// display numbers are updated, new ones created. Rows whose content hash
// matches a different already-imported question are flagged as duplicates
// in the report but still imported; pool maintainers resolve those by hand.
func (s *Service) ImportExcel(ctx context.Context, r io.Reader) (*ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows found")
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	required := []string{"display_number", "license_class", "question_text", "option_a", "option_b", "option_c", "option_d", "correct_answer"}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	hashesSeen := map[string]string{}

	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		report.TotalRows++

		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		in := UpsertQuestionInput{
			DisplayNumber: get("display_number"),
			LicenseClass:  get("license_class"),
			QuestionText:  get("question_text"),
			OptionA:       get("option_a"),
			OptionB:       get("option_b"),
			OptionC:       get("option_c"),
			OptionD:       get("option_d"),
			CorrectAnswer: get("correct_answer"),
		}
		if v := get("explanation"); v != "" {
			in.Explanation = &v
		}
		if v := get("figure_ref"); v != "" {
			in.FigureRef = &v
		}
		if v := strings.ToLower(get("is_active")); v != "" {
			active := v == "1" || v == "true" || v == "yes"
			in.IsActive = &active
		}

		if err := in.normalize(); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{
				Row:           rowNo,
				DisplayNumber: in.DisplayNumber,
				Error:         err.Error(),
			})
			continue
		}

		hash := in.hash()
		if prev, seen := hashesSeen[hash]; seen && prev != in.DisplayNumber {
			report.DuplicateRows++
			report.Duplicates = append(report.Duplicates, fmt.Sprintf("%s duplicates %s", in.DisplayNumber, prev))
		} else {
			hashesSeen[hash] = in.DisplayNumber
		}

		existing, err := s.GetByDisplayNumber(ctx, in.DisplayNumber)
		switch {
		case err == nil:
			if _, err := s.Update(ctx, existing.ID, in); err != nil {
				report.FailedRows++
				report.Errors = append(report.Errors, ImportRowError{
					Row:           rowNo,
					DisplayNumber: in.DisplayNumber,
					Error:         err.Error(),
				})
				continue
			}
			report.UpdatedRows++
		case errors.Is(err, ErrQuestionNotFound):
			if _, err := s.Create(ctx, in); err != nil {
				report.FailedRows++
				report.Errors = append(report.Errors, ImportRowError{
					Row:           rowNo,
					DisplayNumber: in.DisplayNumber,
					Error:         err.Error(),
				})
				continue
			}
			report.CreatedRows++
		default:
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{
				Row:           rowNo,
				DisplayNumber: in.DisplayNumber,
				Error:         "failed to check existing question",
			})
		}
	}

	return report, nil
}
