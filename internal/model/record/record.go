package record

import "strings"

// UserRecord is one row of the uploaded identity table.
type UserRecord struct {
	ID                        string `json:"id"`
	FirstName                 string `json:"firstName"`
	PhoneNumber               string `json:"phoneNumber"`
	MothersMaidenName         string `json:"-"`
	FirstElementarySchoolName string `json:"-"`
	FirstPetName              string `json:"-"`
}

// Table is an immutable, read-only set of user records.
type Table struct {
	rows []UserRecord
}

// NewTable copies rows into a new Table.
func NewTable(rows []UserRecord) *Table {
	return &Table{rows: append([]UserRecord(nil), rows...)}
}

// Len reports how many records the table holds.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Match returns every record with an exact phone match and a case-insensitive first-name match.
func (t *Table) Match(phone, firstName string) []UserRecord {
	if t == nil {
		return nil
	}
	var out []UserRecord
	for _, row := range t.rows {
		if row.PhoneNumber == phone && strings.EqualFold(row.FirstName, firstName) {
			out = append(out, row)
		}
	}
	return out
}

// ByID finds a record by its identifier.
func (t *Table) ByID(id string) (UserRecord, bool) {
	if t == nil || id == "" {
		return UserRecord{}, false
	}
	for _, row := range t.rows {
		if row.ID == id {
			return row, true
		}
	}
	return UserRecord{}, false
}

// Transactions holds the per-user transactional rows, keyed by column name.
type Transactions struct {
	columns []string
	rows    []map[string]string
}

// NewTransactions builds a transaction table from decoded rows.
func NewTransactions(columns []string, rows []map[string]string) *Transactions {
	return &Transactions{
		columns: append([]string(nil), columns...),
		rows:    append([]map[string]string(nil), rows...),
	}
}

// Columns lists the header in upload order.
func (t *Transactions) Columns() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.columns...)
}

// Len reports the total number of rows.
func (t *Transactions) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// RowsFor returns the rows whose UserID column equals userID.
func (t *Transactions) RowsFor(userID string) []map[string]string {
	if t == nil || userID == "" {
		return nil
	}
	var out []map[string]string
	for _, row := range t.rows {
		if row[ColumnUserID] == userID {
			cp := make(map[string]string, len(row))
			for k, v := range row {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}
	return out
}
