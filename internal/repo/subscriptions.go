package repo

import (
	"context"
	"time"

	"tandem/internal/domain"
)

// UpsertSubscription stores a push subscription keyed by endpoint; an existing
// endpoint is reassigned to the new person and keys.
func (r Repo) UpsertSubscription(ctx context.Context, s domain.PushSubscription) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO push_subscriptions(endpoint,person,p256dh,auth,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(endpoint) DO UPDATE SET person=excluded.person, p256dh=excluded.p256dh, auth=excluded.auth`,
		s.Endpoint, string(s.Person), s.P256dh, s.Auth, formatTime(s.CreatedAt))
	return err
}

// ListSubscriptions returns every subscription registered for person.
func (r Repo) ListSubscriptions(ctx context.Context, person domain.Person) ([]domain.PushSubscription, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT endpoint,person,p256dh,auth,created_at FROM push_subscriptions WHERE person=? ORDER BY created_at, endpoint`, string(person))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PushSubscription
	for rows.Next() {
		var (
			s       domain.PushSubscription
			created string
		)
		if err := rows.Scan(&s.Endpoint, &s.Person, &s.P256dh, &s.Auth, &created); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// DeleteSubscription removes a subscription; a missing endpoint is not an error.
func (r Repo) DeleteSubscription(ctx context.Context, endpoint string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint=?`, endpoint)
	return err
}
