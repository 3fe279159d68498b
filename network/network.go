// Package network provides a minimal, logging-only implementation of
// hotstuff.Network. The transport itself (peer discovery, gossip,
// request/response) is explicitly out of scope for this module (§1);
// this adapter exists so cmd/replica has something concrete to wire
// while a real transport is swapped in at deployment time, the same role
// the teacher's engine/consensus networking stack plays relative to the
// libp2p-backed network package it sits on (present in go.mod but not in
// the consensus core's own retrieval-pack files).
package network

import (
	"github.com/rs/zerolog"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
)

// LoggingAdapter records every polling intent it is asked to inject,
// without driving any real transport.
type LoggingAdapter struct {
	log zerolog.Logger
}

// New creates a LoggingAdapter.
func New(log zerolog.Logger) *LoggingAdapter {
	return &LoggingAdapter{log: log.With().Str("component", "network").Logger()}
}

func (a *LoggingAdapter) InjectConsensusInfo(intent hotstuff.PollIntent, view uint64) {
	a.log.Debug().Uint64("view", view).Str("intent", intentName(intent)).Msg("poll intent")
}

func intentName(intent hotstuff.PollIntent) string {
	switch intent {
	case hotstuff.PollForProposal:
		return "poll_for_proposal"
	case hotstuff.PollForVotes:
		return "poll_for_votes"
	case hotstuff.PollForVIDDisperse:
		return "poll_for_vid_disperse"
	case hotstuff.PollForDAC:
		return "poll_for_dac"
	case hotstuff.CancelPollForProposal:
		return "cancel_poll_for_proposal"
	case hotstuff.CancelPollForVotes:
		return "cancel_poll_for_votes"
	case hotstuff.CancelPollForVIDDisperse:
		return "cancel_poll_for_vid_disperse"
	case hotstuff.CancelPollForDAC:
		return "cancel_poll_for_dac"
	default:
		return "unknown"
	}
}
