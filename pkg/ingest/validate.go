package ingest

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/nps-engine/pkg/models"
)

// RowError explains why a data row was rejected. Row is 1-based over data rows.
type RowError struct {
	Row     int
	Reasons []string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, strings.Join(e.Reasons, "; "))
}

// ValidateRow builds a NormalizedResponse from keyed fields. The row is rejected
// when the survey name, score or creation date is missing or invalid; optional
// fields that fail to parse are left absent.
func ValidateRow(row int, fields map[string]string) (*models.NormalizedResponse, *RowError) {
	var reasons []string

	survey := strings.TrimSpace(fields[FieldSurveyName])
	if survey == "" {
		reasons = append(reasons, "missing survey name")
	}

	rawScore, hasScore := fields[FieldNPSScore]
	score, scoreOK := ParseScore(rawScore)
	if !scoreOK {
		if !hasScore || strings.TrimSpace(rawScore) == "" {
			reasons = append(reasons, "missing NPS score")
		} else {
			reasons = append(reasons, fmt.Sprintf("invalid NPS score %q", strings.TrimSpace(rawScore)))
		}
	}

	rawDate, hasDate := fields[FieldCreationDate]
	created, dateOK := ParseDate(rawDate)
	if !dateOK {
		if !hasDate || strings.TrimSpace(rawDate) == "" {
			reasons = append(reasons, "missing creation date")
		} else {
			reasons = append(reasons, fmt.Sprintf("invalid creation date %q", strings.TrimSpace(rawDate)))
		}
	}

	if len(reasons) > 0 {
		return nil, &RowError{Row: row, Reasons: reasons}
	}

	resp := &models.NormalizedResponse{
		SurveyName:       survey,
		NPSScore:         score,
		NPSCategory:      models.CategoryForScore(score),
		CreationDate:     created,
		Gender:           optionalText(fields[FieldGender]),
		AgeRange:         optionalText(fields[FieldAgeRange]),
		Tenure:           optionalText(fields[FieldTenure]),
		Title:            optionalText(fields[FieldTitle]),
		SubscriptionKey:  optionalText(fields[FieldSubscriptionKey]),
		SubscriptionType: optionalText(fields[FieldSubscriptionType]),
		ExitReason:       optionalText(fields[FieldExitReason]),
	}

	if comment, ok := ParseComment(fields[FieldNPSExplanation]); ok {
		resp.NPSExplanation = &comment
		resp.HasExplanation = true
		resp.WordCount = WordCount(comment)
	}
	if trial, ok := ParseBool(fields[FieldHadTrial]); ok {
		resp.HadTrial = &trial
	}

	return resp, nil
}
