package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
)

func TestAppendWritesOneLinePerCycle(t *testing.T) {
	dir := t.TempDir()
	w := NewSnapshotWriter(dir)

	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	pools := []domain.Pool{
		{Symbol: "WETH", Venue: domain.Venue{DEX: "uniswap_v3", Chain: "ethereum"}, Address: "0x01", PriceUSD: 3000},
	}

	require.NoError(t, w.Append(at, pools))
	require.NoError(t, w.Append(at.Add(30*time.Second), nil))

	path := filepath.Join(dir, "snapshots-20260831.jsonl")
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines []snapshotLine
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line snapshotLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Count)
	require.Len(t, lines[0].Pools, 1)
	assert.Equal(t, "WETH", lines[0].Pools[0].Symbol)
	assert.Equal(t, 0, lines[1].Count)
}

func TestAppendRotatesAtDayBoundary(t *testing.T) {
	dir := t.TempDir()
	w := NewSnapshotWriter(dir)

	day1 := time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)
	require.NoError(t, w.Append(day1, nil))
	require.NoError(t, w.Append(day2, nil))

	assert.FileExists(t, filepath.Join(dir, "snapshots-20260831.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "snapshots-20260901.jsonl"))
}
