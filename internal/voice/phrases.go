package voice

import (
	"fmt"
	"strings"

	"github.com/ent0n29/healthpilot/internal/views"
)

const (
	processingNotice       = "Processing..."
	medicineScannerPhrase  = "I'm opening the pill scanner. Please hold your medicine in front of the camera and I will identify it automatically."
	analyzingPhrase        = "I'm analyzing those symptoms for you. One moment."
	confirmPhrase          = "Certainly, opening it now."
	denyPhrase             = "Okay, I won't open it. Let me know if you need anything else."
	parseFailurePhrase     = "I'm having trouble connecting to my brain. Please try again in a second."
	analysisFailurePhrase  = "I'm sorry, I couldn't process that symptom analysis. Please try describing them again."
	defaultFallbackPhrase  = "I heard you, but I'm not sure how to help with that. Can you try saying 'go to dashboard'?"
	defaultBookingQuestion = "Would you like me to help you find a specialist?"
	specialtyBookingFormat = "Would you like me to help you find a %s?"
)

func navigationPhrase(v views.View) string {
	return fmt.Sprintf("Opening %s for you.", views.Spoken(v))
}

// analysisSummary speaks the top condition followed by the parser's
// proposal, or a booking question when the parser had none.
func analysisSummary(condition, suggestion, specialty string) string {
	next := strings.TrimSpace(suggestion)
	if next == "" {
		if s := strings.TrimSpace(specialty); s != "" {
			next = fmt.Sprintf(specialtyBookingFormat, s)
		} else {
			next = defaultBookingQuestion
		}
	}
	return fmt.Sprintf("Based on what you told me, it could be %s. %s", condition, next)
}

func fallbackPhrase(suggestion string) string {
	return fallbackOr(suggestion, defaultFallbackPhrase)
}

func fallbackOr(suggestion, phrase string) string {
	if s := strings.TrimSpace(suggestion); s != "" {
		return s
	}
	return phrase
}
