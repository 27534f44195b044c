package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Column names expected in uploaded files.
const (
	ColumnID                        = "ID"
	ColumnFirstName                 = "FirstName"
	ColumnPhoneNumber               = "PhoneNumber"
	ColumnMothersMaidenName         = "MothersMaidenName"
	ColumnFirstElementarySchoolName = "FirstElementarySchoolName"
	ColumnFirstPetName              = "FirstPetName"
	ColumnUserID                    = "UserID"
)

var (
	ErrEmptyFile     = errors.New("record: file has no header row")
	ErrMissingColumn = errors.New("record: required column missing")
)

var userColumns = []string{
	ColumnID,
	ColumnFirstName,
	ColumnPhoneNumber,
	ColumnMothersMaidenName,
	ColumnFirstElementarySchoolName,
	ColumnFirstPetName,
}

// DecodeRecordsCSV parses a user-record upload into a Table.
func DecodeRecordsCSV(r io.Reader) (*Table, error) {
	header, body, err := readAll(r)
	if err != nil {
		return nil, err
	}
	index, err := columnIndex(header, userColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]UserRecord, 0, len(body))
	for _, line := range body {
		get := func(name string) string { return field(line, index[name]) }
		rows = append(rows, UserRecord{
			ID:                        get(ColumnID),
			FirstName:                 get(ColumnFirstName),
			PhoneNumber:               get(ColumnPhoneNumber),
			MothersMaidenName:         get(ColumnMothersMaidenName),
			FirstElementarySchoolName: get(ColumnFirstElementarySchoolName),
			FirstPetName:              get(ColumnFirstPetName),
		})
	}
	return NewTable(rows), nil
}

// DecodeTransactionsCSV parses a transactional upload. Only the UserID column is required.
func DecodeTransactionsCSV(r io.Reader) (*Transactions, error) {
	header, body, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if _, err := columnIndex(header, []string{ColumnUserID}); err != nil {
		return nil, err
	}

	canonical := make([]string, len(header))
	for i, name := range header {
		if strings.EqualFold(name, ColumnUserID) {
			name = ColumnUserID
		}
		canonical[i] = name
	}

	rows := make([]map[string]string, 0, len(body))
	for _, line := range body {
		row := make(map[string]string, len(canonical))
		for i, name := range canonical {
			row[name] = field(line, i)
		}
		rows = append(rows, row)
	}
	return NewTransactions(canonical, rows), nil
}

func readAll(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("record: decode csv: %w", err)
	}
	if len(lines) == 0 {
		return nil, nil, ErrEmptyFile
	}

	header := make([]string, len(lines[0]))
	for i, name := range lines[0] {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[i] = strings.TrimSpace(name)
	}
	return header, lines[1:], nil
}

func columnIndex(header, required []string) (map[string]int, error) {
	index := make(map[string]int, len(required))
	for _, want := range required {
		pos := -1
		for i, name := range header {
			if strings.EqualFold(name, want) {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, want)
		}
		index[want] = pos
	}
	return index, nil
}

func field(line []string, i int) string {
	if i < 0 || i >= len(line) {
		return ""
	}
	return strings.TrimSpace(line[i])
}
