package orchestrate

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// State is a step of the crawl. States only move forward.
type State int

const (
	StateStart State = iota
	StateCompetitionsResolved
	StateSeasonsResolved
	StateLeagueStatsResolved
	StatePlayersResolved
	StateTeamDone
	StateReportReady
)

var stateNames = [...]string{
	StateStart:                "START",
	StateCompetitionsResolved: "COMPETITIONS_RESOLVED",
	StateSeasonsResolved:      "SEASONS_RESOLVED",
	StateLeagueStatsResolved:  "LEAGUE_STATS_RESOLVED",
	StatePlayersResolved:      "PLAYERS_RESOLVED",
	StateTeamDone:             "TEAM_DONE",
	StateReportReady:          "REPORT_READY",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IllegalTransitionError is returned when a machine is asked to move backwards
type IllegalTransitionError struct {
	Machine  string
	From, To State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: illegal transition %s -> %s", e.Machine, e.From, e.To)
}

// machine tracks one state sequence (the run, or one branch). Skipping
// forward is allowed; TEAM_DONE is the only state that may repeat.
type machine struct {
	mu    sync.Mutex
	name  string
	state State
	log   *logrus.Entry
}

func newMachine(name string, start State, log *logrus.Entry) *machine {
	return &machine{name: name, state: start, log: log.WithField("machine", name)}
}

func (m *machine) advance(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if to < m.state || (to == m.state && to != StateTeamDone) || to > StateReportReady {
		return &IllegalTransitionError{Machine: m.name, From: m.state, To: to}
	}
	if to != m.state {
		m.log.WithFields(logrus.Fields{"from": m.state, "state": to}).Debug("State transition")
	}
	m.state = to
	return nil
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
