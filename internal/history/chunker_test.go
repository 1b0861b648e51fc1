package history_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybithist/internal/history"
)

func date(s string) time.Time {
	t, err := time.Parse(history.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		chunkDays int
		want      [][2]string
	}{
		{
			name:      "twelve days in fives",
			start:     "2026-01-01",
			end:       "2026-01-12",
			chunkDays: 5,
			want: [][2]string{
				{"2026-01-01", "2026-01-05"},
				{"2026-01-06", "2026-01-10"},
				{"2026-01-11", "2026-01-12"},
			},
		},
		{
			name:      "single day range",
			start:     "2026-03-15",
			end:       "2026-03-15",
			chunkDays: 5,
			want:      [][2]string{{"2026-03-15", "2026-03-15"}},
		},
		{
			name:      "exact multiple",
			start:     "2026-01-01",
			end:       "2026-01-10",
			chunkDays: 5,
			want: [][2]string{
				{"2026-01-01", "2026-01-05"},
				{"2026-01-06", "2026-01-10"},
			},
		},
		{
			name:      "one-day chunks",
			start:     "2026-01-01",
			end:       "2026-01-03",
			chunkDays: 1,
			want: [][2]string{
				{"2026-01-01", "2026-01-01"},
				{"2026-01-02", "2026-01-02"},
				{"2026-01-03", "2026-01-03"},
			},
		},
		{
			name:      "crosses month boundary",
			start:     "2026-01-30",
			end:       "2026-02-03",
			chunkDays: 3,
			want: [][2]string{
				{"2026-01-30", "2026-02-01"},
				{"2026-02-02", "2026-02-03"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := history.Split(date(tt.start), date(tt.end), tt.chunkDays)
			require.NoError(t, err)
			require.Len(t, chunks, len(tt.want))
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Equal(t, tt.want[i][0], c.Start.Format(history.DateLayout))
				assert.Equal(t, tt.want[i][1], c.End.Format(history.DateLayout))
				assert.LessOrEqual(t, c.Days(), tt.chunkDays)
			}
		})
	}
}

func TestSplitCoversRangeExactly(t *testing.T) {
	start, end := date("2026-01-01"), date("2026-03-20")
	for chunkDays := 1; chunkDays <= history.MaxChunkDays; chunkDays++ {
		chunks, err := history.Split(start, end, chunkDays)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		assert.True(t, chunks[0].Start.Equal(start))
		assert.True(t, chunks[len(chunks)-1].End.Equal(end))
		for i := 1; i < len(chunks); i++ {
			// Gap-free and non-overlapping: each chunk starts the day
			// after its predecessor ends.
			assert.True(t, chunks[i].Start.Equal(chunks[i-1].End.AddDate(0, 0, 1)),
				"chunk %d not contiguous with %d at chunkDays=%d", i, i-1, chunkDays)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	a, err := history.Split(date("2026-01-01"), date("2026-02-14"), 4)
	require.NoError(t, err)
	b, err := history.Split(date("2026-01-01"), date("2026-02-14"), 4)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		chunkDays int
	}{
		{"chunk days at platform limit", "2026-01-01", "2026-01-12", 6},
		{"chunk days far above limit", "2026-01-01", "2026-01-02", 30},
		{"zero chunk days", "2026-01-01", "2026-01-12", 0},
		{"negative chunk days", "2026-01-01", "2026-01-12", -1},
		{"start after end", "2026-01-12", "2026-01-01", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := history.Split(date(tt.start), date(tt.end), tt.chunkDays)
			require.Error(t, err)
			assert.ErrorIs(t, err, history.ErrInvalidConfiguration)
		})
	}
}

func TestSplitRequestValidates(t *testing.T) {
	req := history.Request{
		Market:    history.MarketSpot,
		Dataset:   history.DatasetTrades,
		Symbol:    "BTCUSDT",
		Start:     date("2026-01-01"),
		End:       date("2026-01-12"),
		ChunkDays: 6,
	}
	_, err := history.SplitRequest(req)
	assert.ErrorIs(t, err, history.ErrInvalidConfiguration)
}
