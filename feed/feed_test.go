package feed

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	md "community.io/pinboard/models"
	st "community.io/pinboard/stores"
)

var testNow = md.TimeOf(time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC))

func newTestGenerator(t *testing.T) (*Generator, *st.FilePinStore) {
	t.Helper()
	dirs := st.DirsUnder(t.TempDir())
	files := st.NewLocalFileStore(dirs)
	require.Nil(t, files.EnsureDirectories())
	clock := func() md.TimeValue { return testNow }
	pins := st.NewFilePinStore(files, dirs, md.DefaultTimeConfig(), st.WithClock(clock))
	g := NewGenerator(pins, md.DefaultTimeConfig(), "pins.example", "Buurtbord")
	g.Now = clock
	return g, pins
}

func TestFeed_Render(t *testing.T) {
	g, pins := newTestGenerator(t)
	meow := &md.Pin{
		Title:       "Meow meetup",
		Description: "Cats and their people",
		Location:    "Grote Markt",
		PostedBy:    "tabby",
		Datetime:    md.TimeOf(time.Date(2024, 4, 30, 16, 0, 0, 0, time.UTC)),
	}
	old := &md.Pin{Title: "Old news", Location: "Attic", PostedBy: "owl", Datetime: testNow.Add(-72 * time.Hour)}
	_, err := pins.Save(meow, "meow", false)
	require.Nil(t, err)
	_, err = pins.Save(old, "old-news", false)
	require.Nil(t, err)

	tcs := []struct {
		kind     Kind
		expected []string
	}{
		{kind: KindAll, expected: []string{"Meow meetup", "Old news"}},
		{kind: KindUpcoming, expected: []string{"Meow meetup"}},
		{kind: KindArchive, expected: []string{"Old news"}},
	}
	for _, c := range tcs {
		t.Run(c.kind.Name, func(t *testing.T) {
			b, err := g.Render(c.kind)
			require.Nil(t, err)
			cal, perr := ical.ParseCalendar(strings.NewReader(string(b)))
			require.NoError(t, perr)
			summaries := []string{}
			for _, ev := range cal.Events() {
				summaries = append(summaries, ev.GetProperty(ical.ComponentPropertySummary).Value)
			}
			assert.Equal(t, c.expected, summaries)
		})
	}

	b, err := g.Render(KindUpcoming)
	require.Nil(t, err)
	cal, perr := ical.ParseCalendar(strings.NewReader(string(b)))
	require.NoError(t, perr)
	require.Len(t, cal.Events(), 1)
	ev := cal.Events()[0]
	assert.Equal(t, "meow@pins.example", ev.GetProperty("UID").Value)
	start, serr := ev.GetStartAt()
	require.NoError(t, serr)
	assert.True(t, start.Equal(meow.Datetime.Time()))
	end, eerr := ev.GetEndAt()
	require.NoError(t, eerr)
	assert.True(t, end.Equal(meow.Datetime.Add(2*time.Hour).Time()))
	assert.Equal(t, "https://pins.example/pins/meow", ev.GetProperty("URL").Value)
	assert.Equal(t, "Grote Markt", ev.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "2024-04-30T16:00:00.000Z", meow.Datetime.ISOString(), "rendering must not move the start")
}

func TestFeed_RenderMissingDir(t *testing.T) {
	g := NewGenerator(st.NewFilePinStore(st.NewLocalFileStore(st.DirsUnder("/nonexistent")), st.DirsUnder("/nonexistent"), md.DefaultTimeConfig()), md.DefaultTimeConfig(), "x", "x")
	_, err := g.Render(KindAll)
	assert.NotNil(t, err)
}

func TestFeed_KindByFilename(t *testing.T) {
	for _, name := range []string{"all.ics", "upcoming.ics", "archive.ics"} {
		k, ok := KindByFilename(name)
		assert.True(t, ok)
		assert.Equal(t, name, k.Filename())
	}
	_, ok := KindByFilename("secret.ics")
	assert.False(t, ok)
}

func TestFeed_SiteURL(t *testing.T) {
	assert.Equal(t, "https://pins.example", SiteURL("pins.example"))
	assert.Equal(t, "http://localhost:3000", SiteURL("http://localhost:3000/"))
	assert.Equal(t, "https://pins.example/pins/meow", PinURL(SiteURL("pins.example"), "meow"))
}

func TestFeed_TimeSensitive(t *testing.T) {
	assert.False(t, KindAll.TimeSensitive())
	assert.True(t, KindUpcoming.TimeSensitive())
	assert.True(t, KindArchive.TimeSensitive())
}
