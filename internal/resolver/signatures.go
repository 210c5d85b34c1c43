package resolver

import (
	"strings"
	"time"

	"github.com/gilkh/livret/internal/database"
)

// SignatureView is what a signature box draws. Only the immutable signature
// record feeds it; the signer's current profile image is never consulted.
type SignatureView struct {
	InlineData string
	URL        string
	SignerName string
	SignedAt   time.Time
}

// FallbackText is drawn when no signature image can be loaded.
func (v SignatureView) FallbackText() string {
	text := "✓"
	if v.SignerName != "" {
		text += " " + v.SignerName
	}
	if !v.SignedAt.IsZero() {
		text += " " + v.SignedAt.Format("02/01/2006")
	}
	return text
}

// SignatureFor returns the most recent signature of the given type.
func (r *Resolver) SignatureFor(sigType string) (SignatureView, bool) {
	var best *database.TemplateSignature
	for i := range r.in.Signatures {
		s := &r.in.Signatures[i]
		if s.Type != sigType {
			continue
		}
		if best == nil || s.SignedAt.After(best.SignedAt) {
			best = s
		}
	}
	if best == nil {
		return SignatureView{}, false
	}

	view := SignatureView{
		InlineData: best.SignatureData,
		URL:        best.SignatureURL,
		SignedAt:   best.SignedAt,
	}
	if signer, ok := r.in.Signers[best.SubAdminID]; ok {
		view.SignerName = signer.DisplayName
	}
	return view, true
}

// records merges the signature mirror kept in the assignment data with the
// signature rows.
func (r *Resolver) records() []database.SignatureRecord {
	out := make([]database.SignatureRecord, 0, len(r.in.Data.Signatures)+len(r.in.Signatures))
	out = append(out, r.in.Data.Signatures...)
	for _, s := range r.in.Signatures {
		out = append(out, database.SignatureRecord{
			Type:              s.Type,
			SubAdminID:        s.SubAdminID,
			SignedAt:          s.SignedAt,
			Level:             s.Level,
			SchoolYearName:    s.SchoolYearName,
			SignaturePeriodID: s.SignaturePeriodID,
		})
	}
	return out
}

// Semester classifies a signature record as semester 1 or 2, using the
// period id suffix when present and the signature type otherwise.
func Semester(rec database.SignatureRecord) int {
	switch {
	case strings.HasSuffix(rec.SignaturePeriodID, "_sem1"):
		return 1
	case strings.HasSuffix(rec.SignaturePeriodID, "_sem2"), strings.HasSuffix(rec.SignaturePeriodID, "_end_of_year"):
		return 2
	case rec.Type == database.SignatureEndOfYear:
		return 2
	default:
		return 1
	}
}

// SignatureDate returns when the most recent signature matching level (when
// set) and semester was made.
func (r *Resolver) SignatureDate(level string, semester int) (time.Time, bool) {
	var best time.Time
	found := false
	for _, rec := range r.records() {
		if level != "" && !strings.EqualFold(rec.Level, level) {
			continue
		}
		if Semester(rec) != semester {
			continue
		}
		if !found || rec.SignedAt.After(best) {
			best = rec.SignedAt
			found = true
		}
	}
	return best, found
}

// Promotion finds the promotion a promotion_info block describes. Recorded
// promotions win; otherwise one is inferred from the latest signature of the
// requested period and the student's current level.
func (r *Resolver) Promotion(targetLevel, level, period string) (database.PromotionRecord, bool) {
	promotions := r.in.Data.Promotions
	for i := len(promotions) - 1; i >= 0; i-- {
		p := promotions[i]
		switch {
		case targetLevel != "":
			if strings.EqualFold(p.To, targetLevel) {
				return p, true
			}
		case level != "":
			if strings.EqualFold(p.From, level) {
				return p, true
			}
		default:
			return p, true
		}
	}
	return r.inferPromotion(targetLevel, level, period)
}

func (r *Resolver) inferPromotion(targetLevel, level, period string) (database.PromotionRecord, bool) {
	wantType := database.SignatureStandard
	if isEndOfYear(period) {
		wantType = database.SignatureEndOfYear
	}

	var latest *database.SignatureRecord
	for _, rec := range r.records() {
		if rec.Type != wantType {
			continue
		}
		if level != "" && rec.Level != "" && !strings.EqualFold(rec.Level, level) {
			continue
		}
		rec := rec
		if latest == nil || rec.SignedAt.After(latest.SignedAt) {
			latest = &rec
		}
	}
	if latest == nil {
		return database.PromotionRecord{}, false
	}

	from := r.level
	if level != "" {
		from = level
	}
	to := targetLevel
	if to == "" {
		to = NextLevel(from, r.in.LevelOrder)
	}
	if to == "" {
		return database.PromotionRecord{}, false
	}

	year := latest.SchoolYearName
	if year == "" {
		year = AcademicYear(latest.SignedAt)
	}
	signedAt := latest.SignedAt
	return database.PromotionRecord{
		From:  from,
		To:    to,
		Year:  year,
		Class: r.ClassName(),
		Date:  &signedAt,
	}, true
}

func isEndOfYear(period string) bool {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "end-year", "end_year", "end_of_year", "end-of-year":
		return true
	}
	return false
}
