package battle

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// PlayerSnapshot is the broadcast-safe view of one session.
type PlayerSnapshot struct {
	UserID     string       `json:"userId"`
	Username   string       `json:"username"`
	Ready      bool         `json:"ready"`
	TotalScore int          `json:"totalScore"`
	JoinedAt   time.Time    `json:"joinTime"`
	History    []RoundScore `json:"roundScores,omitempty"`
}

// RoomSnapshot is an immutable point-in-time view of a room, built
// fresh for every broadcast. Players appear in join order, which is
// also the tie-break order for rankings.
type RoomSnapshot struct {
	RoomID         string           `json:"roomId"`
	RoomName       string           `json:"roomName"`
	HostUserID     string           `json:"hostUserId"`
	HostUsername   string           `json:"hostUsername,omitempty"`
	Status         RoomStatus       `json:"status"`
	MaxPlayers     int              `json:"maxPlayers"`
	CurrentPlayers int              `json:"currentPlayers"`
	CurrentRound   int              `json:"currentRound"`
	TotalRounds    int              `json:"totalRounds"`
	Topic          string           `json:"topic"`
	Difficulty     string           `json:"difficulty"`
	Scenario       string           `json:"scenario,omitempty"`
	CreatedAt      time.Time        `json:"createTime"`
	Players        []PlayerSnapshot `json:"players"`
}

// PlayerScore is one player's line in a round's score report.
type PlayerScore struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Answer   string `json:"answer"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback,omitempty"`
}

type RankItem struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

type Ranking struct {
	CurrentRound []RankItem `json:"currentRound"`
	Total        []RankItem `json:"total"`
}

// RoundResult is the SCORES_UPDATED / GAME_FINISHED payload.
type RoundResult struct {
	Round   int           `json:"round"`
	Scores  []PlayerScore `json:"scores"`
	Ranking Ranking       `json:"ranking"`
}

// Snapshot copies the live state into a serializable view.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := RoomSnapshot{
		RoomID:         r.id,
		RoomName:       r.config.RoomName,
		HostUserID:     r.hostID,
		Status:         r.status,
		MaxPlayers:     r.config.MaxPlayers,
		CurrentPlayers: len(r.players),
		CurrentRound:   r.currentRound,
		TotalRounds:    r.config.TotalRounds,
		Topic:          r.config.Topic,
		Difficulty:     r.config.Difficulty,
		Scenario:       r.config.Scenario,
		CreatedAt:      r.createdAt,
	}
	if host, ok := r.players[r.hostID]; ok {
		snap.HostUsername = host.username
	}
	snap.Players = lo.Map(r.order, func(id string, _ int) PlayerSnapshot {
		p := r.players[id]
		return PlayerSnapshot{
			UserID:     p.userID,
			Username:   p.username,
			Ready:      p.ready,
			TotalScore: p.totalScore,
			JoinedAt:   p.joinedAt,
			History:    append([]RoundScore(nil), p.history...),
		}
	})
	return snap
}

// RoundResult builds the score report for the round being resolved.
// Must be called after ApplyScores and before FinishRound: the total
// ranking adds the unfolded round score on top of the running total,
// the way the report reads mid-resolution. Rankings sort by score
// descending; ties keep join order (stable sort over snapshot order).
func (r *Room) RoundResult(results map[string]ScoreResult) RoundResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := RoundResult{Round: r.currentRound}
	out.Scores = lo.Map(r.order, func(id string, _ int) PlayerScore {
		p := r.players[id]
		ps := PlayerScore{UserID: p.userID, Username: p.username}
		if p.answer != nil {
			ps.Answer = *p.answer
		}
		if p.score != nil {
			ps.Score = *p.score
		}
		if res, ok := results[id]; ok {
			ps.Feedback = res.Feedback
		}
		return ps
	})

	out.Ranking.CurrentRound = rankBy(out.Scores, func(ps PlayerScore) int {
		return ps.Score
	})
	out.Ranking.Total = rankBy(out.Scores, func(ps PlayerScore) int {
		p := r.players[ps.UserID]
		total := p.totalScore
		if p.score != nil {
			total += *p.score
		}
		return total
	})
	return out
}

func rankBy(scores []PlayerScore, scoreOf func(PlayerScore) int) []RankItem {
	items := lo.Map(scores, func(ps PlayerScore, _ int) RankItem {
		return RankItem{UserID: ps.UserID, Username: ps.Username, Score: scoreOf(ps)}
	})
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	for i := range items {
		items[i].Rank = i + 1
	}
	return items
}
