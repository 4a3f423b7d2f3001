// Package views enumerates the application screens voice commands can open.
package views

import "strings"

// View identifies one navigable screen.
type View string

const (
	Dashboard           View = "dashboard"
	AIAssistant         View = "ai-assistant"
	Telemedicine        View = "telemedicine"
	Forum               View = "forum"
	Wearables           View = "wearables"
	PriceComparison     View = "price-comparison"
	MentalHealth        View = "mental-health"
	HealthPlan          View = "health-plan"
	PredictiveAnalytics View = "predictive-analytics"
	GenomicAnalysis     View = "genomic-analysis"
	AIInsights          View = "ai-insights"
	Favorites           View = "favorites"
	Cart                View = "cart"
	ResourceFinder      View = "resource-finder"
	SymptomChecker      View = "symptom-checker"
	AppointmentPrep     View = "appointment-prep"
	HealthRecords       View = "health-records"
	AshaConnect         View = "asha-connect"
	MedicalCamps        View = "medical-camps"
	MedicineIdentifier  View = "medicine-identifier"
	Vitals              View = "vitals"
	InclusiveBridge     View = "inclusive-bridge"
	FamilyHub           View = "family-hub"
	MedicationReminders View = "medication-reminders"
)

var all = []View{
	Dashboard, AIAssistant, Telemedicine, Forum, Wearables, PriceComparison,
	MentalHealth, HealthPlan, PredictiveAnalytics, GenomicAnalysis, AIInsights,
	Favorites, Cart, ResourceFinder, SymptomChecker, AppointmentPrep,
	HealthRecords, AshaConnect, MedicalCamps, MedicineIdentifier, Vitals,
	InclusiveBridge, FamilyHub, MedicationReminders,
}

var known = func() map[View]struct{} {
	m := make(map[View]struct{}, len(all))
	for _, v := range all {
		m[v] = struct{}{}
	}
	return m
}()

// aliases maps loose spoken names onto views.
var aliases = map[string]View{
	"home":           Dashboard,
	"assistant":      AIAssistant,
	"ai":             AIAssistant,
	"doctor":         Telemedicine,
	"community":      Forum,
	"prices":         PriceComparison,
	"pharmacy":       PriceComparison,
	"records":        HealthRecords,
	"asha":           AshaConnect,
	"camps":          MedicalCamps,
	"pill scanner":   MedicineIdentifier,
	"scanner":        MedicineIdentifier,
	"reminders":      MedicationReminders,
	"family":         FamilyHub,
	"symptoms":       SymptomChecker,
	"shopping cart":  Cart,
	"resources":      ResourceFinder,
	"find resources": ResourceFinder,
}

// All returns the known views in display order.
func All() []View {
	out := make([]View, len(all))
	copy(out, all)
	return out
}

// Normalize resolves raw text to a known view.
func Normalize(raw string) (View, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if v, ok := aliases[s]; ok {
		return v, true
	}
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	s = strings.TrimSuffix(s, "-page")
	if _, ok := known[View(s)]; ok {
		return View(s), true
	}
	return "", false
}

// Spoken renders v the way confirmation phrases say it.
func Spoken(v View) string {
	return strings.ReplaceAll(string(v), "-", " ")
}

// Strings returns the view identifiers, for schema enums and prompts.
func Strings() []string {
	out := make([]string, len(all))
	for i, v := range all {
		out[i] = string(v)
	}
	return out
}
