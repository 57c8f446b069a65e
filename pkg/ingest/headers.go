package ingest

import (
	"strconv"
	"strings"
)

// Canonical field keys.
const (
	FieldSurveyName       = "survey_name"
	FieldNPSScore         = "nps_score"
	FieldNPSExplanation   = "nps_explanation"
	FieldGender           = "gender"
	FieldAgeRange         = "age_range"
	FieldTenure           = "tenure"
	FieldCreationDate     = "creation_date"
	FieldTitle            = "title"
	FieldSubscriptionKey  = "subscription_key"
	FieldSubscriptionType = "subscription_type"
	FieldHadTrial         = "had_trial"
	FieldExitReason       = "exit_reason"
)

// headerSynonyms maps cleaned headers (Dutch and English) to canonical keys.
var headerSynonyms = map[string]string{
	"survey":      FieldSurveyName,
	"survey_name": FieldSurveyName,
	"surveynaam":  FieldSurveyName,
	"survey_naam": FieldSurveyName,
	"enquete":     FieldSurveyName,
	"enquête":     FieldSurveyName,

	"nps":        FieldNPSScore,
	"nps_score":  FieldNPSScore,
	"nps_cijfer": FieldNPSScore,
	"score":      FieldNPSScore,
	"cijfer":     FieldNPSScore,

	"nps_toelichting": FieldNPSExplanation,
	"toelichting":     FieldNPSExplanation,
	"nps_explanation": FieldNPSExplanation,
	"opmerking":       FieldNPSExplanation,
	"opmerkingen":     FieldNPSExplanation,
	"comment":         FieldNPSExplanation,
	"comments":        FieldNPSExplanation,
	"explanation":     FieldNPSExplanation,
	"feedback":        FieldNPSExplanation,

	"geslacht": FieldGender,
	"gender":   FieldGender,

	"leeftijd":           FieldAgeRange,
	"leeftijdsgroep":     FieldAgeRange,
	"leeftijdscategorie": FieldAgeRange,
	"age":                FieldAgeRange,
	"age_range":          FieldAgeRange,
	"age_group":          FieldAgeRange,

	"abojaren":         FieldTenure,
	"abonnementsjaren": FieldTenure,
	"tenure":           FieldTenure,

	"creatie_dt":    FieldCreationDate,
	"creatiedatum":  FieldCreationDate,
	"aanmaakdatum":  FieldCreationDate,
	"datum":         FieldCreationDate,
	"date":          FieldCreationDate,
	"created_at":    FieldCreationDate,
	"creation_date": FieldCreationDate,

	"titel_tekst": FieldTitle,
	"titel":       FieldTitle,
	"title":       FieldTitle,

	"subscription_key":  FieldSubscriptionKey,
	"abo_key":           FieldSubscriptionKey,
	"abonnementsnummer": FieldSubscriptionKey,

	"abo_type":          FieldSubscriptionType,
	"abonnementstype":   FieldSubscriptionType,
	"subscription_type": FieldSubscriptionType,

	"elt_proef_gehad": FieldHadTrial,
	"proef_gehad":     FieldHadTrial,
	"had_trial":       FieldHadTrial,

	"exit_opzegreden": FieldExitReason,
	"opzegreden":      FieldExitReason,
	"exit_reason":     FieldExitReason,
}

// CleanHeader trims, lowercases and collapses internal whitespace runs to "_".
func CleanHeader(header string) string {
	return strings.Join(strings.Fields(strings.ToLower(header)), "_")
}

// HeaderMapping maps each raw header position to exactly one output key.
// PayloadKeys are the raw headers made unique: a repeated header gets a
// ".1", ".2", ... suffix so no column is lost from the raw payload.
type HeaderMapping struct {
	Raw         []string
	Keys        []string
	PayloadKeys []string
}

// MapHeaders resolves every header to a canonical key, or to its cleaned form
// when no synonym matches.
func MapHeaders(headers []string) HeaderMapping {
	m := HeaderMapping{
		Raw:         make([]string, len(headers)),
		Keys:        make([]string, len(headers)),
		PayloadKeys: uniqueHeaders(headers),
	}
	for i, h := range headers {
		cleaned := CleanHeader(h)
		key, ok := headerSynonyms[cleaned]
		if !ok {
			key = cleaned
		}
		m.Raw[i] = h
		m.Keys[i] = key
	}
	return m
}

// Collisions lists output keys claimed by more than one raw header, with the
// raw headers in column order. When a row is built the rightmost column wins.
func (m HeaderMapping) Collisions() map[string][]string {
	byKey := make(map[string][]string)
	for i, key := range m.Keys {
		byKey[key] = append(byKey[key], m.Raw[i])
	}
	collisions := make(map[string][]string)
	for key, raws := range byKey {
		if len(raws) > 1 {
			collisions[key] = raws
		}
	}
	return collisions
}

// Fields builds the keyed view of one row. Missing trailing cells read as "".
// Colliding keys are last-write-wins.
func (m HeaderMapping) Fields(values []string) map[string]string {
	fields := make(map[string]string, len(m.Keys))
	for i, key := range m.Keys {
		fields[key] = cell(values, i)
	}
	return fields
}

// Payload builds the raw-record view of one row, keyed by original header.
// Cells beyond the header row are kept under positional names.
func (m HeaderMapping) Payload(values []string) map[string]string {
	payload := make(map[string]string, len(values))
	for i, key := range m.PayloadKeys {
		payload[key] = cell(values, i)
	}
	for i := len(m.Raw); i < len(values); i++ {
		payload[positionalKey(i)] = values[i]
	}
	return payload
}

func cell(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func uniqueHeaders(headers []string) []string {
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		seen[h] = true
	}
	counts := make(map[string]int, len(headers))
	keys := make([]string, len(headers))
	for i, h := range headers {
		n := counts[h]
		counts[h] = n + 1
		if n == 0 {
			keys[i] = h
			continue
		}
		key := h + "." + strconv.Itoa(n)
		for seen[key] {
			n++
			key = h + "." + strconv.Itoa(n)
		}
		counts[h] = n + 1
		seen[key] = true
		keys[i] = key
	}
	return keys
}

func positionalKey(i int) string {
	return "column_" + strconv.Itoa(i+1)
}
