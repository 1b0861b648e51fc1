package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybithist/internal/history"
)

func validFlags() downloadFlags {
	return downloadFlags{
		market:    "spot",
		dataset:   "trades",
		symbol:    "BTCUSDT",
		start:     "2026-01-01",
		end:       "2026-01-12",
		chunkDays: 5,
	}
}

func TestParseRequest(t *testing.T) {
	req, err := parseRequest(validFlags())
	require.NoError(t, err)

	assert.Equal(t, history.MarketSpot, req.Market)
	assert.Equal(t, history.DatasetTrades, req.Dataset)
	assert.Equal(t, "BTCUSDT", req.Symbol)
	assert.Equal(t, 5, req.ChunkDays)
	assert.Equal(t, "2026-01-01", req.Start.Format(history.DateLayout))
	assert.Equal(t, "2026-01-12", req.End.Format(history.DateLayout))
}

func TestParseRequestAliases(t *testing.T) {
	f := validFlags()
	f.market = "derivatives"
	f.dataset = "orderbook"

	req, err := parseRequest(f)
	require.NoError(t, err)
	assert.Equal(t, history.MarketContract, req.Market)
	assert.Equal(t, history.DatasetL2Book, req.Dataset)
}

func TestParseRequestRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*downloadFlags)
	}{
		{"unknown market", func(f *downloadFlags) { f.market = "options" }},
		{"unknown dataset", func(f *downloadFlags) { f.dataset = "funding" }},
		{"malformed start date", func(f *downloadFlags) { f.start = "01/01/2026" }},
		{"malformed end date", func(f *downloadFlags) { f.end = "tomorrow" }},
		{"missing symbol", func(f *downloadFlags) { f.symbol = "" }},
		{"chunk days above platform limit", func(f *downloadFlags) { f.chunkDays = 6 }},
		{"start after end", func(f *downloadFlags) { f.start = "2026-02-01" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFlags()
			tt.mutate(&f)
			_, err := parseRequest(f)
			assert.Error(t, err)
		})
	}
}

func TestMirrorURL(t *testing.T) {
	assert.Equal(t, "s3://flag-bucket", mirrorURL("s3://flag-bucket", "s3://config-bucket"))
	assert.Equal(t, "s3://config-bucket", mirrorURL("", "s3://config-bucket"))
	assert.Empty(t, mirrorURL("", ""))
}

func TestRunUnknownCommand(t *testing.T) {
	assert.Equal(t, 2, run([]string{"upload"}))
	assert.Equal(t, 2, run(nil))
}
