package identity

import (
	"errors"
	"log"
	"math/rand/v2"

	"github.com/zhouzirui/z-concierge/backend/internal/model/record"
	"github.com/zhouzirui/z-concierge/backend/internal/redact"
)

var (
	ErrNoRecordTable   = errors.New("identity: no record table loaded")
	ErrRecordNotFound  = errors.New("identity: no matching record")
	ErrAmbiguousRecord = errors.New("identity: more than one matching record")
)

// Security questions asked during a challenge.
const (
	QuestionMothersMaidenName = "What is your mother's maiden name?"
	QuestionFirstSchool       = "What was the name of your first elementary school?"
	QuestionFirstPet          = "What was the name of your first pet?"
)

// Challenge is an issued security question with its expected answer.
type Challenge struct {
	Question string
	Answer   string
	RecordID string
}

// Picker chooses an index in [0, n).
type Picker func(n int) int

// RandomPicker draws uniformly.
func RandomPicker(n int) int {
	return rand.IntN(n)
}

func candidates(rec record.UserRecord) []Challenge {
	return []Challenge{
		{Question: QuestionMothersMaidenName, Answer: rec.MothersMaidenName, RecordID: rec.ID},
		{Question: QuestionFirstSchool, Answer: rec.FirstElementarySchoolName, RecordID: rec.ID},
		{Question: QuestionFirstPet, Answer: rec.FirstPetName, RecordID: rec.ID},
	}
}

func draw(rec record.UserRecord, pick Picker) Challenge {
	if pick == nil {
		pick = RandomPicker
	}
	options := candidates(rec)
	idx := pick(len(options))
	if idx < 0 || idx >= len(options) {
		idx = 0
	}
	return options[idx]
}

// FindRecord matches the phone exactly and the first name case-insensitively,
// then draws one of the three security questions for that record.
// Duplicate matches are rejected with ErrAmbiguousRecord.
func FindRecord(phone, firstName string, table *record.Table, pick Picker) (Challenge, error) {
	if table == nil {
		return Challenge{}, ErrNoRecordTable
	}

	matches := table.Match(phone, firstName)
	switch len(matches) {
	case 0:
		return Challenge{}, ErrRecordNotFound
	case 1:
		return draw(matches[0], pick), nil
	default:
		log.Printf("[lookup] %d records share phone=%s name=%s", len(matches), redact.Text(phone), redact.Name(firstName))
		return Challenge{}, ErrAmbiguousRecord
	}
}

// FindRecordByID draws a fresh challenge for an already-identified record.
func FindRecordByID(id string, table *record.Table, pick Picker) (Challenge, error) {
	if table == nil {
		return Challenge{}, ErrNoRecordTable
	}
	rec, ok := table.ByID(id)
	if !ok {
		return Challenge{}, ErrRecordNotFound
	}
	return draw(rec, pick), nil
}
