// Package importer loads a member roster from a CSV export.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"

	"golang.org/x/text/unicode/norm"
)

// Header aliases accepted for each member field, compared case-insensitively
// after NFC normalization. The Vietnamese headers are those of the club's
// anniversary roster export.
var columnAliases = map[string][]string{
	"name":         {"name", "full_name", "full name", "họ và tên"},
	"display_key":  {"display_key", "registration", "registration_number", "student_id", "mssv"},
	"department":   {"department", "cohort", "khóa"},
	"organization": {"organization", "origin", "tổ chức/nguồn gốc"},
	"join_year":    {"join_year", "year", "năm tham gia"},
	"former_role":  {"former_role", "role", "cựu vai trò ở clb"},
}

// RowError reports a row that could not be turned into a member. Line is
// the 1-based line in the file, counting the header.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

type row struct {
	line   int
	member domain.Member
}

// Parse reads members from r. The first row is the header and must carry a
// name column. Every parsed member starts NOT_CHECKED_IN. Rows that fail
// validation are returned as RowErrors and skipped.
func Parse(r io.Reader) ([]domain.Member, []RowError, error) {
	rows, rowErrs, err := parseRows(r)
	members := make([]domain.Member, 0, len(rows))
	for _, item := range rows {
		members = append(members, item.member)
	}
	return members, rowErrs, err
}

func parseRows(r io.Reader) ([]row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, domain.NewFailure(domain.ErrValidation, "csv file is empty")
		}
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := mapColumns(header)
	if _, ok := columns["name"]; !ok {
		return nil, nil, domain.NewFailure(domain.ErrValidation, "csv header has no name column")
	}

	var rows []row
	var rowErrs []RowError
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, rowErrs, fmt.Errorf("read csv: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		field := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}
		m := domain.Member{
			Name:         field("name"),
			DisplayKey:   field("display_key"),
			Department:   field("department"),
			Organization: field("organization"),
			JoinYear:     field("join_year"),
			FormerRole:   field("former_role"),
			State:        domain.MemberStateNotCheckedIn,
		}
		if err := m.Validate(); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		rows = append(rows, row{line: line, member: m})
	}
	return rows, rowErrs, nil
}

// Creator creates one member on the member service.
type Creator interface {
	Create(ctx context.Context, m domain.Member) (*domain.Member, error)
}

// Result summarizes an import run.
type Result struct {
	Created int
	Failed  []RowError
}

// Import parses r and creates every valid member through c. A failed
// create is recorded and the import continues with the next row.
func Import(ctx context.Context, c Creator, r io.Reader) (*Result, error) {
	rows, rowErrs, err := parseRows(r)
	if err != nil {
		return nil, err
	}

	result := &Result{Failed: rowErrs}
	for _, item := range rows {
		m := item.member
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := c.Create(ctx, m); err != nil {
			logger.Warn("Failed to import member", "name", m.Name, "error", err)
			result.Failed = append(result.Failed, RowError{Line: item.line, Err: err})
			continue
		}
		result.Created++
	}
	logger.Info("Roster import finished", "created", result.Created, "failed", len(result.Failed))
	return result, nil
}

func mapColumns(header []string) map[string]int {
	columns := make(map[string]int)
	for idx, raw := range header {
		name := normalizeHeader(raw)
		for field, aliases := range columnAliases {
			if _, taken := columns[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if name == alias {
					columns[field] = idx
				}
			}
		}
	}
	return columns
}

func normalizeHeader(raw string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))))
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
