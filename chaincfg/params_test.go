package chaincfg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mr-pandabear/pandanode/model"
)

func TestRecomputeDifficultyIncreasesWhenBlocksComeTooFast(t *testing.T) {
	// Ten 1-second intervals, far below DesiredBlockTimeSec=90.
	timestamps := make([]int64, 0, 11)
	for i := int64(0); i <= 10; i++ {
		timestamps = append(timestamps, i*1000)
	}
	got := RecomputeDifficulty(10, timestamps)
	assert.Equal(t, uint8(11), got)
}

func TestRecomputeDifficultyDecreasesWhenBlocksComeTooSlow(t *testing.T) {
	timestamps := []int64{0, 200_000} // 200s, far above 90s
	got := RecomputeDifficulty(10, timestamps)
	assert.Equal(t, uint8(9), got)
}

func TestRecomputeDifficultyHoldsWithinTolerance(t *testing.T) {
	timestamps := []int64{0, 90_000} // exactly the desired interval
	got := RecomputeDifficulty(10, timestamps)
	assert.Equal(t, uint8(10), got)
}

func TestRecomputeDifficultyClampsToMinimum(t *testing.T) {
	timestamps := []int64{0, 200_000}
	got := RecomputeDifficulty(MinDifficulty, timestamps)
	assert.Equal(t, uint8(MinDifficulty), got)
}

func TestRecomputeDifficultyClampsToMaximum(t *testing.T) {
	timestamps := make([]int64, 0, 3)
	for i := int64(0); i <= 2; i++ {
		timestamps = append(timestamps, i)
	}
	got := RecomputeDifficulty(MaxDifficulty, timestamps)
	assert.Equal(t, uint8(MaxDifficulty), got)
}

func TestRecomputeDifficultyRequiresAtLeastTwoTimestamps(t *testing.T) {
	assert.Equal(t, uint8(42), RecomputeDifficulty(42, []int64{1000}))
	assert.Equal(t, uint8(42), RecomputeDifficulty(42, nil))
}

func TestParamsIsBanned(t *testing.T) {
	banned := model.Hash{1, 2, 3}
	p := &Params{BannedHashes: map[uint32]map[model.Hash]struct{}{
		100: {banned: struct{}{}},
	}}

	assert.True(t, p.IsBanned(100, banned))
	assert.False(t, p.IsBanned(100, model.Hash{9}))
	assert.False(t, p.IsBanned(101, banned))
}

func TestParamsIsBannedWithNilMap(t *testing.T) {
	p := &Params{}
	assert.False(t, p.IsBanned(1, model.Hash{1}))
}

func TestParamsCheckpointAt(t *testing.T) {
	cp := Checkpoint{Height: 500, Hash: model.Hash{7}}
	p := &Params{Checkpoints: []Checkpoint{cp}}

	got, ok := p.CheckpointAt(500)
	assert.True(t, ok)
	assert.Equal(t, cp, got)

	_, ok = p.CheckpointAt(501)
	assert.False(t, ok)
}
