package directory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryReplacesWholesale(t *testing.T) {
	d := New()
	assert.Nil(t, d.Records())
	assert.Nil(t, d.Transactions())

	_, err := d.LoadRecords(strings.NewReader("ID,FirstName,PhoneNumber,MothersMaidenName,FirstElementarySchoolName,FirstPetName\n1,John,555,Smith,Lincoln,Rex\n"))
	require.NoError(t, err)
	first := d.Records()
	assert.Equal(t, 1, first.Len())

	_, err = d.LoadRecords(strings.NewReader("ID,FirstName,PhoneNumber,MothersMaidenName,FirstElementarySchoolName,FirstPetName\n2,Sofia,777,Garcia,Roosevelt,Luna\n3,Ana,888,Lopez,Jefferson,Max\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Records().Len())
	assert.Equal(t, 1, first.Len())

	_, ok := d.Records().ByID("1")
	assert.False(t, ok)
}

func TestDirectoryKeepsPreviousTableOnBadUpload(t *testing.T) {
	d := New()
	_, err := d.LoadTransactions(strings.NewReader("UserID,Item\n1,Laptop\n"))
	require.NoError(t, err)

	_, err = d.LoadTransactions(strings.NewReader("Item\nPhone\n"))
	assert.Error(t, err)
	assert.Equal(t, 1, d.Transactions().Len())
}

func TestDirectoryLoadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,FirstName,PhoneNumber,MothersMaidenName,FirstElementarySchoolName,FirstPetName\n1,John,555,Smith,Lincoln,Rex\n"), 0o600))

	d := New()
	require.NoError(t, d.LoadRecordsFile(path))
	assert.Equal(t, 1, d.Records().Len())

	assert.Error(t, d.LoadTransactionsFile(filepath.Join(dir, "missing.csv")))
}
