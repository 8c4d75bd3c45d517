package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/ragdesk/internal/session"
)

var errOutcomeLost = errors.New("action finished without reporting a result")

type queryResultMsg struct {
	outcome session.QueryOutcome
}

type ingestResultMsg struct {
	action session.IngestAction
	state  session.IngestState
}

// awaitQueryJob waits for the outcome of a submission already handed to the
// query session. The session has applied the result by the time it arrives.
func awaitQueryJob(outcomes <-chan session.QueryOutcome) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		select {
		case outcome, ok := <-outcomes:
			if !ok {
				return queryResultMsg{}, errOutcomeLost
			}
			msg := queryResultMsg{outcome: outcome}
			switch {
			case outcome.Superseded:
				return msg, errSuperseded
			case outcome.State.Status == session.QueryFailed:
				return msg, errors.New(outcome.State.Error)
			}
			return msg, nil
		case <-ctx.Done():
			return queryResultMsg{}, ctx.Err()
		}
	}
}

func awaitIngestJob(action session.IngestAction, outcomes <-chan session.IngestState) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		select {
		case state, ok := <-outcomes:
			if !ok {
				return ingestResultMsg{action: action}, errOutcomeLost
			}
			msg := ingestResultMsg{action: action, state: state}
			if state.Status == session.IngestFailed {
				return msg, errors.New(state.Message)
			}
			return msg, nil
		case <-ctx.Done():
			return ingestResultMsg{action: action}, ctx.Err()
		}
	}
}
