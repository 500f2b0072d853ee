// Package router implements the gray-zone routing decision: a small state
// machine on the top fused candidate's final score against two configured
// thresholds.
package router

import (
	"github.com/faultmatch/core/internal/config"
	"github.com/faultmatch/core/internal/domain"
)

// Decide implements the state machine on candidates[0].FinalScore against
// thresholds. candidates must already be sorted by FinalScore descending
// (as internal/fusion.Fuse returns them) — only the top candidate is
// inspected.
func Decide(candidates []*domain.Candidate, thresholds config.Thresholds) domain.Decision {
	if len(candidates) == 0 {
		return domain.Decision{Mode: domain.ModeNoMatch, Reason: "no candidates"}
	}

	top := candidates[0]

	switch {
	case top.FinalScore >= thresholds.PassThreshold:
		return domain.Decision{
			Mode:       domain.ModeDirect,
			ChosenID:   top.ID,
			Confidence: top.FinalScore,
			Reason:     "high confidence",
		}
	case top.FinalScore >= thresholds.GrayLowThreshold:
		return domain.Decision{
			Mode:       domain.ModeGray,
			ChosenID:   top.ID,
			Confidence: top.FinalScore,
			Reason:     "gray band",
		}
	default:
		return domain.Decision{
			Mode:       domain.ModeReject,
			Confidence: top.FinalScore,
			Reason:     "below gray_low",
		}
	}
}

// UpgradeWithLLM applies the LLM adjudication upgrade rule documented in
// spec §4.9: a concrete chosen_id promotes the decision to llm mode with
// confidence = max(final, llm.confidence); UNKNOWN keeps the decision gray
// and appends the picker's reason.
func UpgradeWithLLM(decision domain.Decision, llm domain.LLMDecision) domain.Decision {
	if llm.ChosenID == "" || llm.ChosenID == "UNKNOWN" {
		decision.Reason = decision.Reason + "; " + llm.Reason
		decision.LLM = &domain.LLMDecision{
			ChosenID:   llm.ChosenID,
			Confidence: llm.Confidence,
			Reason:     llm.Reason,
		}
		return decision
	}

	decision.Mode = domain.ModeLLM
	decision.ChosenID = llm.ChosenID
	decision.Confidence = max(decision.Confidence, llm.Confidence)
	decision.LLM = &domain.LLMDecision{
		ChosenID:   llm.ChosenID,
		Confidence: llm.Confidence,
		Reason:     llm.Reason,
	}
	return decision
}
