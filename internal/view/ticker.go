package view

import (
	"fmt"
	"time"

	"tandem/internal/domain"
)

type Locale string

const (
	LocaleDE Locale = "de"
	LocaleEN Locale = "en"
)

type phrasebook struct {
	empty     string
	title     string
	sentences map[domain.ActivityType]string
}

var phrasebooks = map[Locale]phrasebook{
	LocaleDE: {
		empty: "Noch keine Aktivität. Entweder sehr ruhig oder der Server schläft noch.",
		title: "Neue Aktivität",
		sentences: map[domain.ActivityType]string{
			domain.ActivityAdded:     "%s hat „%s“ hinzugefügt",
			domain.ActivityCompleted: "%s hat „%s“ erledigt",
			domain.ActivityReopened:  "%s hat „%s“ wieder geöffnet",
			domain.ActivityEdited:    "%s hat „%s“ bearbeitet",
			domain.ActivityPinned:    "%s hat „%s“ angepinnt",
			domain.ActivityUnpinned:  "%s hat „%s“ nicht mehr angepinnt",
		},
	},
	LocaleEN: {
		empty: "No activity yet. Either very quiet or the server is still asleep.",
		title: "New activity",
		sentences: map[domain.ActivityType]string{
			domain.ActivityAdded:     "%s added “%s”",
			domain.ActivityCompleted: "%s completed “%s”",
			domain.ActivityReopened:  "%s reopened “%s”",
			domain.ActivityEdited:    "%s edited “%s”",
			domain.ActivityPinned:    "%s pinned “%s”",
			domain.ActivityUnpinned:  "%s unpinned “%s”",
		},
	},
}

func book(locale Locale) phrasebook {
	if b, ok := phrasebooks[locale]; ok {
		return b
	}
	return phrasebooks[LocaleDE]
}

// Labeler maps an identity to its display name.
type Labeler func(domain.Person) string

type TickerView struct {
	ActivityID int64      `json:"activity_id"`
	Text       string     `json:"text"`
	CreatedAt  *time.Time `json:"created_at,omitempty" format:"date-time"`
	Empty      bool       `json:"empty"`
}

// Sentence renders rec in locale. Unknown types fall back to the edit wording.
func Sentence(rec domain.ActivityRecord, label Labeler, locale Locale) string {
	b := book(locale)
	tmpl, ok := b.sentences[rec.Type]
	if !ok {
		tmpl = b.sentences[domain.ActivityEdited]
	}
	who := string(rec.Actor)
	if label != nil {
		who = label(rec.Actor)
	}
	return fmt.Sprintf(tmpl, who, rec.Title)
}

// Title is the notification heading for locale.
func Title(locale Locale) string {
	return book(locale).title
}

// Ticker renders the latest record; a nil record is the empty log.
func Ticker(rec *domain.ActivityRecord, label Labeler, locale Locale) TickerView {
	if rec == nil {
		return TickerView{Text: book(locale).empty, Empty: true}
	}
	created := rec.CreatedAt
	return TickerView{
		ActivityID: rec.ID,
		Text:       Sentence(*rec, label, locale),
		CreatedAt:  &created,
	}
}
