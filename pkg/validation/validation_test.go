package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addressIn struct {
	State   string `json:"state" validate:"required,usstate"`
	ZipCode string `json:"zip_code" validate:"omitempty,zip5"`
	Time    string `json:"incident_time" validate:"omitempty,hhmm"`
	Date    string `json:"incident_date" validate:"omitempty,isodate"`
	Section string `json:"section" validate:"sectiontype"`
	Amount  string `json:"amount" validate:"omitempty,money"`
}

func TestCustomTags(t *testing.T) {
	errs, err := Validate(addressIn{State: "tx", ZipCode: "75201-1234", Time: "23:59", Date: "2026-01-31", Section: "damages", Amount: "$1,200.00"})
	require.NoError(t, err)
	assert.Nil(t, errs)

	errs, err = Validate(addressIn{State: "ZZ", ZipCode: "7520", Time: "24:00", Date: "01/31/2026", Section: "bogus", Amount: "abc"})
	require.NoError(t, err)
	for _, f := range []string{"state", "zip_code", "incident_time", "incident_date", "section", "amount"} {
		assert.Contains(t, errs, f)
	}
}

func TestRequiredUsesJSONName(t *testing.T) {
	errs, _ := Validate(addressIn{Section: "narrative"})
	assert.Equal(t, []string{"This field is required"}, errs["state"])
}

func TestParseMoney(t *testing.T) {
	d, err := ParseMoney("$1,234.567")
	require.NoError(t, err)
	assert.Equal(t, "1234.57", d.StringFixed(2))

	d, err = ParseMoney("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseMoney("-5")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-03")
	require.NoError(t, err)
	assert.Equal(t, 3, d.Day())

	d, err = ParseDate(" ")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = ParseDate("02/03/2026")
	assert.Error(t, err)
}
