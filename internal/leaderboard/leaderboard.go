// Package leaderboard orders exam attempts for display and locates the
// caller's standing.
package leaderboard

import (
	"sort"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
)

// Status says whether the current user appears on a board.
type Status string

const (
	StatusRanked   Status = "ranked"
	StatusUnranked Status = "unranked"
)

// Standing is the current user's position on a board.
type Standing struct {
	Status Status                  `json:"status"`
	Rank   int                     `json:"rank,omitempty"`
	Entry  *model.LeaderboardEntry `json:"entry,omitempty"`
}

// Board is a ranked leaderboard.
type Board struct {
	Entries []model.LeaderboardEntry `json:"entries"`
	Me      Standing                 `json:"me"`
}

// Rank sorts entries by score descending, then time taken ascending, keeping
// input order for full ties, and assigns competition ranks (1, 2, 2, 4).
// Entries with the same score and time share a rank. When currentUser has
// several entries, the best-placed one is their standing. entries is not
// modified.
func Rank(entries []model.LeaderboardEntry, currentUser uuid.UUID) Board {
	ranked := make([]model.LeaderboardEntry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.TimeTakenSeconds < b.TimeTakenSeconds
	})

	for i := range ranked {
		if i > 0 && sameGroup(ranked[i-1], ranked[i]) {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = i + 1
	}

	board := Board{Entries: ranked, Me: Standing{Status: StatusUnranked}}
	if currentUser == uuid.Nil {
		return board
	}
	for i := range ranked {
		if ranked[i].ExamineeID == currentUser {
			entry := ranked[i]
			board.Me = Standing{Status: StatusRanked, Rank: entry.Rank, Entry: &entry}
			break
		}
	}
	return board
}

func sameGroup(a, b model.LeaderboardEntry) bool {
	return a.Score == b.Score && a.TimeTakenSeconds == b.TimeTakenSeconds
}
