package main

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseDate(t *testing.T) {
	tbl := []struct {
		inp string
		res time.Time
		err bool
	}{
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"2024-01-15T12:30:45Z", time.Date(2024, 1, 15, 12, 30, 45, 0, time.UTC), false},
		{"2024-01-15T12:30:45-07:00", time.Date(2024, 1, 15, 19, 30, 45, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"not-a-date", time.Time{}, true},
		{"2024/01/15", time.Time{}, true},
	}

	for i, tt := range tbl {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			res, err := parseDate(tt.inp)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.res.Equal(res), "want %s, got %s", tt.res, res)
		})
	}
}

func Test_makeConfig(t *testing.T) {
	defer resetOpts()

	opts.Provider = "universal"
	opts.Input = "/tmp/access.csv"
	opts.MaxFileSize = "10GB"
	opts.BatchSize = 500
	opts.StartDate = "2024-01-01"
	opts.EndDate = "2024-01-31"

	cfg, err := makeConfig()
	require.NoError(t, err)
	assert.Equal(t, "universal", cfg.Provider)
	assert.Equal(t, "/tmp/access.csv", cfg.Input)
	assert.Equal(t, int64(10*1000*1000*1000), cfg.MaxFileSize)
	assert.True(t, cfg.HasStartTime)
	assert.True(t, cfg.HasEndTime)
	assert.True(t, cfg.FilterBots, "filter-bots defaults on unless --no-filter-bots is set")
}

func Test_makeConfig_noFilterBots(t *testing.T) {
	defer resetOpts()

	opts.Provider = "universal"
	opts.Input = "/tmp/access.csv"
	opts.MaxFileSize = "10GB"
	opts.NoFilterBots = true

	cfg, err := makeConfig()
	require.NoError(t, err)
	assert.False(t, cfg.FilterBots)
}

func Test_makeConfig_badMaxFileSize(t *testing.T) {
	defer resetOpts()

	opts.MaxFileSize = "not-a-size"
	_, err := makeConfig()
	require.Error(t, err)
}

func Test_makeConfig_endBeforeStart(t *testing.T) {
	defer resetOpts()

	opts.MaxFileSize = "10GB"
	opts.StartDate = "2024-02-01"
	opts.EndDate = "2024-01-01"

	_, err := makeConfig()
	require.Error(t, err)
}

func resetOpts() {
	opts.Provider = ""
	opts.Input = ""
	opts.StartDate = ""
	opts.EndDate = ""
	opts.FilterBots = false
	opts.NoFilterBots = false
	opts.MaxFileSize = ""
	opts.BatchSize = 0
	opts.Cloudflare.APIToken = ""
	opts.Cloudflare.ZoneID = ""
	opts.ValidateOnly = false
}
