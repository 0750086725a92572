// Package verify implements the lexical check applied to reasoning text
// before a flagged transaction's result is finalized.
package verify

import (
	"strings"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// KeywordVerifier passes reasoning text that grounds the flag in debt/DTI or
// card-compromise context; anything else is WEAK_REASONING. The match is
// case-insensitive. WEAK_REASONING is a legitimate terminal state, not an
// error: the transaction still gets a result record.
type KeywordVerifier struct{}

// New creates a KeywordVerifier.
func New() *KeywordVerifier {
	return &KeywordVerifier{}
}

// Verify classifies the reasoning text.
func (v *KeywordVerifier) Verify(text string) domain.VerificationStatus {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "high dti") || strings.Contains(lower, "debt") {
		return domain.VerificationPass
	}
	if strings.Contains(lower, "card") || strings.Contains(lower, "dark web") {
		return domain.VerificationPass
	}
	return domain.VerificationWeak
}
