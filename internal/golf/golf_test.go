package golf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFinalPosition(t *testing.T) {
	cases := map[string]int{
		"T5":  5,
		"CUT": MissedCutPosition,
		"W/D": MissedCutPosition,
		"1":   1,
		"T63": 63,
		"":    MissedCutPosition,
		"DQ":  MissedCutPosition,
	}
	for pos, want := range cases {
		assert.Equal(t, want, ParseFinalPosition(pos), "position %q", pos)
	}
}

func TestMadeCut(t *testing.T) {
	assert.True(t, MadeCut("T5"))
	assert.True(t, MadeCut("1"))
	assert.False(t, MadeCut("CUT"))
	assert.False(t, MadeCut(" W/D "))
}

func TestParsePoints(t *testing.T) {
	assert.Equal(t, 1234.5, ParsePoints("1,234.5"))
	assert.Equal(t, 0.0, ParsePoints(""))
	assert.Equal(t, 0.0, ParsePoints("n/a"))
}

func TestNormalizer(t *testing.T) {
	aliases := map[string]string{"The Masters": "Masters Tournament"}
	n := NewNormalizer(aliases, DefaultPlayerNames())

	// mutating the source map must not leak into the normalizer
	aliases["US Open"] = "U.S. Open"

	assert.Equal(t, "Masters Tournament", n.Tournament("The Masters"))
	assert.Equal(t, "US Open", n.Tournament("US Open"))
	assert.Equal(t, "Sebastián Muñoz", n.Player("Sebastian Munoz"))
	assert.Equal(t, "Scottie Scheffler", n.Player("Scottie Scheffler"))

	assert.Equal(t, "Masters Tournament", n.Normalize(KindTournament, "The Masters"))
	assert.Equal(t, "Sebastián Muñoz", n.Normalize(KindPlayer, "Sebastian Munoz"))
	assert.Equal(t, "The Masters", n.Normalize(KindPlayer, "The Masters"))
	assert.Equal(t, "Sebastian Munoz", n.Normalize(Kind("course"), "Sebastian Munoz"))

	var nilNormalizer *Normalizer
	assert.Equal(t, "raw", nilNormalizer.Player("raw"))
	assert.Equal(t, "raw", nilNormalizer.Normalize(KindTournament, "raw"))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Rory McIlroy", CleanName("  Rory   McIlroy \t"))
}

func TestDateAddMonthsClamps(t *testing.T) {
	assert.Equal(t, MustParseDate("2024-02-29"), MustParseDate("2024-08-31").AddMonths(-6))
	assert.Equal(t, MustParseDate("2023-10-14"), MustParseDate("2024-04-14").AddMonths(-6))
	assert.Equal(t, MustParseDate("2017-02-28"), MustParseDate("2024-02-29").AddYears(-7))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-04-14"))
	assert.Equal(t, NewDate(2024, time.April, 14), d)

	require.NoError(t, d.Scan([]byte("2024-04-15 00:00:00+00:00")))
	assert.Equal(t, NewDate(2024, time.April, 15), d)

	require.NoError(t, d.Scan(time.Date(2024, 4, 16, 13, 30, 0, 0, time.UTC)))
	assert.Equal(t, NewDate(2024, time.April, 16), d)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}

func TestDateValueAndJSON(t *testing.T) {
	v, err := NewDate(2024, time.July, 21).Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-07-21", v)

	v, err = Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	b, err := json.Marshal(struct {
		D Date `json:"d"`
	}{D: NewDate(2024, time.July, 21)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2024-07-21"}`, string(b))
}

func TestScheduledEventEndingDate(t *testing.T) {
	ev := ScheduledEvent{ID: "R2024014", Date: "04/14/2024"}
	d, err := ev.EndingDate()
	require.NoError(t, err)
	assert.Equal(t, MustParseDate("2024-04-14"), d)

	_, err = ScheduledEvent{ID: "x", Date: "2024-04-14"}.EndingDate()
	assert.Error(t, err)
}

func TestStatCategoriesSize(t *testing.T) {
	assert.Len(t, StatCategories, NumStatCategories)
}
