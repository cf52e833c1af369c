package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseTransitions(t *testing.T) {
	allowed := map[[2]Phase]bool{
		{PhaseEditing, PhaseConfirming}:    true,
		{PhaseEditing, PhaseResetting}:     true,
		{PhaseConfirming, PhaseEditing}:    true,
		{PhaseConfirming, PhaseSubmitting}: true,
		{PhaseSubmitting, PhaseSubmitted}:  true,
		{PhaseSubmitting, PhaseEditing}:    true,
		{PhaseSubmitted, PhaseEditing}:     true,
		{PhaseResetting, PhaseEditing}:     true,
	}

	for _, from := range AllPhases() {
		for _, to := range AllPhases() {
			assert.Equal(t, allowed[[2]Phase{from, to}], IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestEveryPhaseHasAnExit(t *testing.T) {
	for _, p := range AllPhases() {
		assert.NotEmpty(t, ValidNextPhases(p), p)
	}
}
