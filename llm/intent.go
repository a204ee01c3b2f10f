package llm

import "strings"

var healthKeywords = []string{
	"fever", "cough", "throat", "pain", "headache", "dizzy", "nausea", "vomit",
	"bleed", "breath", "shortness of breath", "breathing", "rash", "infection",
	"diarrhea", "constipation", "abdominal", "chest pain", "heart", "blood pressure", "bp",
	"diabetes", "insulin", "cholesterol", "allergy", "allergic", "asthma", "symptom", "symptoms",
	"treatment", "prescribe", "diagnosis", "sore throat", "flu", "cold", "covid", "vaccine",
	"pregnant", "pregnancy", "mental health", "depression", "anxiety", "sleep", "insomnia",
	"weight", "bmi", "obesity", "exercise", "nutrition", "diet", "clinic", "doctor", "physician",
	"emergency", "urgent", "tumor", "cancer", "kidney", "lung", "liver", "skin", "stomach", "antibiotic",
}

// IsHealthRelated is a substring keyword filter. Text without any health
// keyword is treated as off-topic.
func IsHealthRelated(text string) bool {
	if text == "" {
		return false
	}
	s := strings.ToLower(text)
	for _, kw := range healthKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
