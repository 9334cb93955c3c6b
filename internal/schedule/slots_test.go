package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var msk = time.FixedZone("UTC+03:00", 3*3600)

func testConfig() Config {
	return Config{
		Location:     msk,
		WorkStart:    ClockTime{Hour: 10},
		WorkEnd:      ClockTime{Hour: 18},
		SlotDuration: time.Hour,
		MinAdvance:   2 * time.Hour,
	}
}

func TestGenerate_AdvanceNoticeExcludesEarlySlots(t *testing.T) {
	cfg := testConfig()
	day := Date{Year: 2026, Month: time.March, Day: 10}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, msk)

	slots := cfg.Generate(day, now)
	require.Len(t, slots, 7)

	for i, s := range slots {
		local := s.Start.In(msk)
		assert.Equal(t, 11+i, local.Hour(), "slot %d", i)
		assert.Equal(t, time.UTC, s.Start.Location())
	}
}

func TestGenerate_GridProperties(t *testing.T) {
	durations := []time.Duration{15 * time.Minute, 30 * time.Minute, 45 * time.Minute, time.Hour, 90 * time.Minute}
	nows := []time.Time{
		time.Date(2026, 3, 9, 12, 0, 0, 0, msk),
		time.Date(2026, 3, 10, 9, 17, 0, 0, msk),
		time.Date(2026, 3, 10, 13, 59, 0, 0, msk),
	}
	day := Date{Year: 2026, Month: time.March, Day: 10}

	for _, d := range durations {
		for _, now := range nows {
			cfg := testConfig()
			cfg.SlotDuration = d
			slots := cfg.Generate(day, now)
			cutoff := now.Add(cfg.MinAdvance)
			for i, s := range slots {
				assert.Equal(t, d, s.End.Sub(s.Start))
				assert.False(t, s.Start.Before(cutoff), "slot starts before cutoff")
				if i > 0 {
					assert.True(t, slots[i-1].End.Equal(s.Start), "slots must be contiguous")
				}
			}
		}
	}
}

func TestGrid_DropsTrailingPartialSlot(t *testing.T) {
	cfg := testConfig()
	cfg.SlotDuration = 45 * time.Minute
	day := Date{Year: 2026, Month: time.March, Day: 10}

	grid := cfg.Grid(day)
	// 8h / 45m = 10 full slots, 30 minutes left over.
	require.Len(t, grid, 10)
	_, end := cfg.Window(day)
	assert.False(t, grid[len(grid)-1].End.After(end))
}

func TestGenerate_DayInsideNoticeWindowIsEmpty(t *testing.T) {
	cfg := testConfig()
	day := Date{Year: 2026, Month: time.March, Day: 10}
	now := time.Date(2026, 3, 10, 17, 0, 0, 0, msk)

	slots := cfg.Generate(day, now)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestBookable(t *testing.T) {
	cfg := testConfig()
	day := Date{Year: 2026, Month: time.March, Day: 10}
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, msk)
	grid := cfg.Grid(day)

	assert.True(t, cfg.Bookable(day, grid[2], now))

	shifted := grid[2]
	shifted.Start = shifted.Start.Add(30 * time.Minute)
	shifted.End = shifted.End.Add(30 * time.Minute)
	assert.False(t, cfg.Bookable(day, shifted, now))

	long := grid[2]
	long.End = long.End.Add(time.Hour)
	assert.False(t, cfg.Bookable(day, long, now))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", d.String())

	for _, bad := range []string{"", "2026-3-10", "10.03.2026", "2026-02-30", "2026-03-10T00:00:00Z"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseLocation(t *testing.T) {
	cases := map[string]int{
		"+03:00": 3 * 3600,
		"UTC+3":  3 * 3600,
		"-0530":  -(5*3600 + 30*60),
		"UTC":    0,
		"":       0,
	}
	ref := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for in, want := range cases {
		loc, err := ParseLocation(in)
		require.NoError(t, err, in)
		_, off := ref.In(loc).Zone()
		assert.Equal(t, want, off, in)
	}

	_, err := ParseLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestMidnightAndDateOf(t *testing.T) {
	cfg := testConfig()
	day := Date{Year: 2026, Month: time.March, Day: 10}

	assert.Equal(t, time.Date(2026, 3, 9, 21, 0, 0, 0, time.UTC), cfg.Midnight(day))
	assert.Equal(t, day, cfg.DateOf(time.Date(2026, 3, 9, 22, 30, 0, 0, time.UTC)))
	assert.Equal(t, Date{Year: 2026, Month: time.March, Day: 9}, cfg.DateOf(time.Date(2026, 3, 9, 20, 59, 0, 0, time.UTC)))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	bad := testConfig()
	bad.WorkEnd = ClockTime{Hour: 9}
	bad.SlotDuration = 0
	assert.Error(t, bad.Validate())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 9, Minute: 30}, c)

	_, err = ParseClock("24:00")
	assert.NoError(t, err)

	for _, bad := range []string{"9", "25:00", "10:60", "aa:bb", "24:30"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
