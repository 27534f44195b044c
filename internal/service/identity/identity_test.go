package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/z-concierge/backend/internal/model/record"
	"github.com/zhouzirui/z-concierge/backend/internal/service/ai/aitest"
)

func sampleTable() *record.Table {
	return record.NewTable([]record.UserRecord{
		{ID: "1", FirstName: "John", PhoneNumber: "555-123-4567", MothersMaidenName: "Smith", FirstElementarySchoolName: "Lincoln", FirstPetName: "Rex"},
		{ID: "2", FirstName: "Sofia", PhoneNumber: "555-369-2580", MothersMaidenName: "Garcia", FirstElementarySchoolName: "Roosevelt", FirstPetName: "Luna"},
	})
}

func fixed(i int) Picker { return func(int) int { return i } }

func TestParseIdentity(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     Identity
		ok       bool
	}{
		{"well formed", "Phone Number: 555-123-4567, First Name: John", Identity{"555-123-4567", "John"}, true},
		{"quoted", "'Phone Number: 555-369-2580, First Name: Sofia.'", Identity{"555-369-2580", "Sofia"}, true},
		{"refusal", "no", Identity{}, false},
		{"refusal any case", "No, the input has no phone number", Identity{}, false},
		{"single field", "Phone Number: 555-123-4567", Identity{}, false},
		{"missing separator", "Phone Number 555-123-4567, First Name John", Identity{}, false},
		{"empty", "   ", Identity{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseIdentity(tc.response)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractorUsesPromptAndSwallowsErrors(t *testing.T) {
	gen := aitest.New("Phone Number: 555-123-4567, First Name: John").ThenError(errors.New("timeout"))
	ex := NewExtractor(gen)

	id, ok := ex.Extract(context.Background(), "My name is John, phone 555-123-4567")
	require.True(t, ok)
	assert.Equal(t, Identity{Phone: "555-123-4567", FirstName: "John"}, id)
	assert.Contains(t, gen.Prompts()[0], "'My name is John, phone 555-123-4567'")
	assert.Contains(t, gen.Prompts()[0], "provide 'no' as the answer")

	_, ok = ex.Extract(context.Background(), "hello")
	assert.False(t, ok)
}

func TestFindRecord(t *testing.T) {
	table := sampleTable()

	ch, err := FindRecord("555-123-4567", "john", table, fixed(0))
	require.NoError(t, err)
	assert.Equal(t, Challenge{Question: QuestionMothersMaidenName, Answer: "Smith", RecordID: "1"}, ch)

	ch, err = FindRecord("555-369-2580", "SOFIA", table, fixed(2))
	require.NoError(t, err)
	assert.Equal(t, Challenge{Question: QuestionFirstPet, Answer: "Luna", RecordID: "2"}, ch)

	_, err = FindRecord("555-123-4567", "Sofia", table, nil)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = FindRecord("555-123-4567", "John", nil, nil)
	assert.ErrorIs(t, err, ErrNoRecordTable)
}

func TestFindRecordQuestionMembership(t *testing.T) {
	table := sampleTable()
	allowed := map[string]string{
		QuestionMothersMaidenName: "Smith",
		QuestionFirstSchool:       "Lincoln",
		QuestionFirstPet:          "Rex",
	}
	for i := 0; i < 50; i++ {
		ch, err := FindRecord("555-123-4567", "John", table, nil)
		require.NoError(t, err)
		want, ok := allowed[ch.Question]
		require.True(t, ok, "unexpected question %q", ch.Question)
		assert.Equal(t, want, ch.Answer)
		assert.Equal(t, "1", ch.RecordID)
	}
}

func TestFindRecordRejectsDuplicates(t *testing.T) {
	table := record.NewTable([]record.UserRecord{
		{ID: "1", FirstName: "John", PhoneNumber: "555-123-4567"},
		{ID: "9", FirstName: "JOHN", PhoneNumber: "555-123-4567"},
	})
	_, err := FindRecord("555-123-4567", "John", table, nil)
	assert.ErrorIs(t, err, ErrAmbiguousRecord)
}

func TestFindRecordByID(t *testing.T) {
	table := sampleTable()

	ch, err := FindRecordByID("2", table, fixed(1))
	require.NoError(t, err)
	assert.Equal(t, QuestionFirstSchool, ch.Question)
	assert.Equal(t, "Roosevelt", ch.Answer)

	_, err = FindRecordByID("404", table, nil)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestParseVerdict(t *testing.T) {
	assert.Equal(t, Verdict{Match: true, MaxAttempts: 3}, ParseVerdict("true, 3"))
	assert.Equal(t, Verdict{Match: true}, ParseVerdict("TRUE, Not specified"))
	assert.Equal(t, Verdict{Match: false, MaxAttempts: 5}, ParseVerdict("false, 5."))
	assert.Equal(t, Verdict{Match: false}, ParseVerdict("false, 0"))
	assert.Equal(t, Verdict{Match: false}, ParseVerdict("maybe"))
}

func TestParseVerdictMatchesByContainment(t *testing.T) {
	// The first token only has to contain "true"; negations are not interpreted.
	assert.Equal(t, Verdict{Match: true}, ParseVerdict("not true"))
	assert.Equal(t, Verdict{Match: true}, ParseVerdict("untrue, Not specified"))
	assert.Equal(t, Verdict{Match: false, MaxAttempts: 2}, ParseVerdict("no, 2, true"))
}

func TestValidatorDelegates(t *testing.T) {
	gen := aitest.New("True, 4")
	v := NewValidator(gen)

	verdict := v.Validate(context.Background(), "Smith", "smyth", "Allow one typo. Users get 4 attempts.")
	assert.Equal(t, Verdict{Match: true, MaxAttempts: 4}, verdict)

	prompt := gen.Prompts()[0]
	for _, want := range []string{"Allow one typo", "Correct answer: Smith", "User answer: smyth"} {
		assert.True(t, strings.Contains(prompt, want), "prompt missing %q", want)
	}
}

func TestValidatorDefaultInstructions(t *testing.T) {
	gen := aitest.New("false, Not specified")
	NewValidator(gen).Validate(context.Background(), "Smith", "Jones", "")
	assert.Contains(t, gen.Prompts()[0], DefaultInstructions)
}

func TestValidatorFallback(t *testing.T) {
	gen := aitest.New().ThenError(errors.New("down")).ThenError(errors.New("down")).Then("")
	v := NewValidator(gen)

	assert.Equal(t, Verdict{Match: true, Fallback: true}, v.Validate(context.Background(), "Smith", "SMITH", ""))
	assert.Equal(t, Verdict{Match: false, Fallback: true}, v.Validate(context.Background(), "Smith", "Smyth", ""))
	assert.Equal(t, Verdict{Match: true, Fallback: true}, v.Validate(context.Background(), "Rex", "rex", ""))
}
