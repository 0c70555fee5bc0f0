package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "plain", in: "Finish Gate", want: "Finish Gate"},
		{name: "strips markup", in: "<b>Start</b> & go", want: "bStart/b  go"},
		{name: "strips control", in: "Top\x00 of\thill\n", want: "Top ofhill"},
		{name: "trims", in: "   lift 3  ", want: "lift 3"},
		{name: "truncates runes", in: "äöüäöü", max: 4, want: "äöüä"},
		{name: "nfc", in: "e\u0301", want: "\u00e9"},
		{name: "invalid utf8", in: "ok\xff", want: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in, tt.max))
		})
	}
}

func TestText_DefaultMax(t *testing.T) {
	out := Text(strings.Repeat("x", MaxTextLength+20), 0)
	require.Len(t, out, MaxTextLength)
}

func TestBib(t *testing.T) {
	for _, ok := range []string{"", "1", "001", " 042 ", "123456"} {
		_, err := Bib(ok)
		require.NoError(t, err, ok)
	}
	for _, bad := range []string{"12a", "-1", "1234567", "1 2"} {
		_, err := Bib(bad)
		require.ErrorIs(t, err, ErrInvalidBib, bad)
	}

	got, err := Bib(" 042 ")
	require.NoError(t, err)
	require.Equal(t, "042", got)
}

func TestRaceID(t *testing.T) {
	got, err := RaceID(" RACE-001 ")
	require.NoError(t, err)
	require.Equal(t, "RACE-001", got)
	require.Equal(t, "race-001", NormalizeRaceID(got))

	for _, bad := range []string{"", "race 1", "race/1", "<x>", strings.Repeat("r", MaxRaceIDLength+1)} {
		_, err := RaceID(bad)
		require.ErrorIs(t, err, ErrInvalidRaceID, bad)
	}
}

func TestID(t *testing.T) {
	_, err := ID("3f1b2c4d-aaaa-bbbb-cccc-000000000000")
	require.NoError(t, err)
	_, err = ID("dev:station.1")
	require.NoError(t, err)
	_, err = ID("")
	require.ErrorIs(t, err, ErrInvalidID)
	_, err = ID("id with space")
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestJSON(t *testing.T) {
	type shape struct {
		Name string `json:"name"`
	}
	fallback := []shape{{Name: "fallback"}}

	got, ok := JSON([]byte(`[{"name":"a"}]`), fallback)
	require.True(t, ok)
	require.Equal(t, []shape{{Name: "a"}}, got)

	for _, bad := range [][]byte{nil, []byte(""), []byte("{not json"), []byte(`{"name":"wrong shape"}`)} {
		got, ok := JSON(bad, fallback)
		require.False(t, ok)
		require.Equal(t, fallback, got)
	}
}
