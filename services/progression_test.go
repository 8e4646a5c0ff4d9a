package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-enrollment-system/models"
)

func result(skill string, score int, at time.Time) models.TournamentResult {
	return models.TournamentResult{TournamentID: "t1", UserID: "u1", SkillKey: skill, Score: score, RecordedAt: at}
}

func TestReplayResults(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	skills := models.SkillMap{
		"serve": {Baseline: 40, CurrentLevel: 55}, // stale level, replay rebuilds it
	}
	ReplayResults(skills, []models.TournamentResult{
		result("serve", 80, base),
		result("serve", 80, base.Add(time.Hour)),
	})

	entry := skills["serve"]
	// 40 -> (40*3+80)/4 = 50 -> (50*3+80)/4 = 57
	assert.Equal(t, 40, entry.Baseline)
	assert.Equal(t, 57, entry.CurrentLevel)
	require.Len(t, entry.Deltas, 2)
	assert.Equal(t, 10, entry.Deltas[0].Change)
	assert.Equal(t, 7, entry.Deltas[1].Change)
	assert.Equal(t, models.SkillSourceTournament, entry.Deltas[0].Source)
}

func TestReplayResultsLeavesOtherSkillsAlone(t *testing.T) {
	skills := models.SkillMap{
		"serve":    {Baseline: 40, CurrentLevel: 40},
		"backhand": {Baseline: 30, CurrentLevel: 33, Deltas: []models.SkillDelta{{Change: 3}}},
	}
	ReplayResults(skills, []models.TournamentResult{
		result("serve", 60, time.Now()),
	})
	assert.Equal(t, 33, skills["backhand"].CurrentLevel)
	assert.Len(t, skills["backhand"].Deltas, 1)
}

func TestReplayResultsDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := []models.TournamentResult{
		result("serve", 70, base),
		result("serve", 90, base.Add(time.Minute)),
		result("dribble", 50, base.Add(2*time.Minute)),
	}

	a := models.SkillMap{"serve": {Baseline: 40}}
	b := models.SkillMap{"serve": {Baseline: 40}}
	ReplayResults(a, history)
	ReplayResults(b, history)
	assert.Equal(t, a, b)

	// Replaying on top of a previous replay converges to the same state.
	ReplayResults(a, history)
	assert.Equal(t, b, a)
}

func TestReplayResultsNewSkill(t *testing.T) {
	skills := models.SkillMap{}
	ReplayResults(skills, []models.TournamentResult{
		result("New Skill", 40, time.Now()),
	})
	entry, ok := skills["new_skill"]
	require.True(t, ok)
	assert.Equal(t, 0, entry.Baseline)
	assert.Equal(t, 10, entry.CurrentLevel) // (0*3+40)/4
}
