package battle

import "time"

// Join adds a player while the room is still waiting.
func (r *Room) Join(userID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return ErrRoomNotFound
	}
	if r.status != StatusWaiting {
		return ErrRoomStarted
	}
	if _, ok := r.players[userID]; ok {
		return ErrAlreadyJoined
	}
	if len(r.players) >= r.config.MaxPlayers {
		return ErrRoomFull
	}
	r.players[userID] = newPlayer(userID, username)
	r.order = append(r.order, userID)
	return nil
}

// Leave removes a player. Leaving twice is a no-op. The returned flag
// tells the caller the room must be destroyed (host left, or nobody is
// left); the caller owns removal from the registry and the lobby
// broadcast.
func (r *Room) Leave(userID string) (destroyed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[userID]; ok {
		delete(r.players, userID)
		for i, id := range r.order {
			if id == userID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	return userID == r.hostID || len(r.players) == 0
}

// ToggleReady flips the ready flag of a non-host member.
func (r *Room) ToggleReady(userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[userID]
	if !ok {
		return false, ErrPlayerNotFound
	}
	if userID == r.hostID {
		return false, ErrHostCannotReady
	}
	p.ready = !p.ready
	return p.ready, nil
}

// Start moves the room into round 1. Only the host may start, at least
// two players must be present, and every non-host member must be ready.
func (r *Room) Start(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userID != r.hostID {
		return ErrOnlyHostCanStart
	}
	if len(r.players) < 2 {
		return ErrNotEnoughPlayers
	}
	if r.status != StatusWaiting {
		return ErrRoomStarted
	}
	for id, p := range r.players {
		if id != r.hostID && !p.ready {
			return ErrNotAllReady
		}
	}
	r.status = StatusPlaying
	r.currentRound = 1
	return nil
}

// BeginRound attaches the generated question, records the round start
// and wipes everyone's per-round answer and score.
func (r *Room) BeginRound(q *Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return ErrRoomClosed
	}
	if r.status != StatusPlaying {
		return ErrNotPlaying
	}
	r.question = q
	r.roundStartedAt = time.Now()
	for _, p := range r.players {
		p.answer = nil
		p.score = nil
	}
	return nil
}

// SubmitAnswer stores a player's answer for the active round, exactly
// once. It reports whether every current member has now submitted and
// the round number the submit counted for, so the caller can
// short-circuit the countdown. A round is only open for answers while
// its question is attached: between FinishRound and the next
// BeginRound the status is already PLAYING again but no question is
// armed, and a submit landing there must not count against either
// round.
func (r *Room) SubmitAnswer(userID, text string) (allSubmitted bool, round int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusPlaying {
		return false, 0, ErrNotPlaying
	}
	p, ok := r.players[userID]
	if !ok {
		return false, 0, ErrPlayerNotFound
	}
	if r.question == nil || r.question.Round != r.currentRound {
		return false, 0, ErrNotPlaying
	}
	if p.answer != nil {
		return false, 0, ErrAlreadySubmitted
	}
	p.answer = &text

	allSubmitted = true
	for _, m := range r.players {
		if m.answer == nil {
			allSubmitted = false
			break
		}
	}
	return allSubmitted, r.currentRound, nil
}

// BeginScoring arbitrates the two resolution triggers (last submit and
// timer expiry): the first caller for the given round flips the status
// to SCORING and wins, everyone else observes false and backs off.
func (r *Room) BeginScoring(round int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed || r.status != StatusPlaying || r.currentRound != round {
		return false
	}
	r.status = StatusScoring
	return true
}

// AnswersForScoring returns every member's answer for the active round,
// with missing answers as empty strings: unanswered rounds are still
// graded, by convention yielding zero.
func (r *Room) AnswersForScoring() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	answers := make(map[string]string, len(r.players))
	for id, p := range r.players {
		if p.answer != nil {
			answers[id] = *p.answer
		} else {
			answers[id] = ""
		}
	}
	return answers
}

// CurrentQuestion returns the question being played, or nil.
func (r *Room) CurrentQuestion() *Question {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.question
}

// ApplyScores writes per-round scores. A member absent from the map
// gets zero; one player's failed grading never blocks the rest.
func (r *Room) ApplyScores(results map[string]ScoreResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusPlaying && r.status != StatusScoring {
		return ErrNotPlaying
	}
	for id, p := range r.players {
		score := 0
		if res, ok := results[id]; ok {
			score = res.Score
		}
		s := score
		p.score = &s
	}
	return nil
}

// FinishRound folds the round into every player's history and total
// (nil score counts as zero), advances the round counter and returns
// the resulting status: FINISHED past the last round, PLAYING otherwise.
func (r *Room) FinishRound() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		entry := RoundScore{Round: r.currentRound}
		if p.answer != nil {
			entry.Answer = *p.answer
		}
		if p.score != nil {
			entry.Score = *p.score
		}
		p.history = append(p.history, entry)
		p.totalScore += entry.Score
	}
	r.question = nil
	r.currentRound++
	if r.currentRound > r.config.TotalRounds {
		r.status = StatusFinished
	} else {
		r.status = StatusPlaying
	}
	return r.status
}

// ForceFinish closes a room whose round can no longer be played (for
// example the oracle stayed unreachable), so it never wedges in PLAYING.
func (r *Room) ForceFinish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusFinished
}

// Status returns the current lifecycle status.
func (r *Room) Status() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// CurrentRound returns the active round number (0 while waiting).
func (r *Room) CurrentRound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentRound
}

// SetTimer stores the countdown for the given round so resolution and
// teardown can cancel it. The arm races the all-submitted resolution
// path: if the round already left PLAYING, or the room moved on or was
// destroyed, the incoming timer is stopped on the spot instead of
// ticking stale countdowns into the next round.
func (r *Room) SetTimer(t *RoundTimer, round int) {
	r.mu.Lock()
	stale := r.destroyed || r.status != StatusPlaying || r.currentRound != round
	if !stale {
		r.timer = t
	}
	r.mu.Unlock()

	if stale && t != nil {
		t.Stop()
	}
}

// StopTimer cancels the pending countdown, if any. Idempotent.
func (r *Room) StopTimer() {
	r.mu.Lock()
	t := r.timer
	r.timer = nil
	r.mu.Unlock()

	if t != nil {
		t.Stop()
	}
}

// Teardown marks the room dead and cancels pending periodic work. Called
// when the room leaves the registry.
func (r *Room) Teardown() {
	r.mu.Lock()
	r.destroyed = true
	t := r.timer
	r.timer = nil
	r.mu.Unlock()

	if t != nil {
		t.Stop()
	}
}
