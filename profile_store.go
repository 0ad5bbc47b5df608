package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitea.kood.tech/roomie/backend/compat"
	"github.com/lib/pq"
)

var errProfileNotFound = errors.New("profile not found")

const profileSelect = `
	SELECT p.user_id, u.email, p.display_name, p.bio, p.hometown, p.socials,
	       p.cleanliness, p.social_level, p.sleep_schedule, p.guest_frequency,
	       p.smoking, p.drinking, p.pets, p.interests, p.preferences
	FROM profiles p
	JOIN users u ON u.id = p.user_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*compat.UserProfile, error) {
	var p compat.UserProfile
	var socials, prefs []byte
	var cleanliness, social, sleep, guests sql.NullInt64
	var smoking, drinking, pets sql.NullBool
	var interests pq.StringArray

	if err := row.Scan(
		&p.ID, &p.Email, &p.DisplayName, &p.Bio, &p.Hometown, &socials,
		&cleanliness, &social, &sleep, &guests,
		&smoking, &drinking, &pets, &interests, &prefs,
	); err != nil {
		return nil, err
	}

	p.Lifestyle = compat.Lifestyle{
		Cleanliness:    nullInt(cleanliness),
		SocialLevel:    nullInt(social),
		SleepSchedule:  nullInt(sleep),
		GuestFrequency: nullInt(guests),
		Smoking:        nullBool(smoking),
		Drinking:       nullBool(drinking),
		Pets:           nullBool(pets),
	}
	p.Interests = []string(interests)
	if p.Interests == nil {
		p.Interests = []string{}
	}
	if len(socials) > 0 {
		if err := json.Unmarshal(socials, &p.Socials); err != nil {
			return nil, fmt.Errorf("decode socials for user %d: %w", p.ID, err)
		}
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences for user %d: %w", p.ID, err)
		}
	}
	return &p, nil
}

// loadProfile fetches one profile snapshot.
func loadProfile(ctx context.Context, db *sql.DB, userID int) (*compat.UserProfile, error) {
	p, err := scanProfile(db.QueryRowContext(ctx, profileSelect+` WHERE p.user_id = $1`, userID))
	if err == sql.ErrNoRows {
		return nil, errProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %d: %w", userID, err)
	}
	return p, nil
}

// loadProfiles fetches many profiles in one round trip, keyed by user id.
func loadProfiles(ctx context.Context, db *sql.DB, ids []int) (map[int]*compat.UserProfile, error) {
	out := make(map[int]*compat.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}
	rows, err := db.QueryContext(ctx, profileSelect+` WHERE p.user_id = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// saveProfileDetails updates the descriptive part of a profile.
func saveProfileDetails(ctx context.Context, db *sql.DB, p *compat.UserProfile) error {
	socials, err := json.Marshal(p.Socials)
	if err != nil {
		return err
	}
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		UPDATE profiles
		SET display_name = $2, bio = $3, hometown = $4, socials = $5,
		    interests = $6, preferences = $7, updated_at = NOW()
		WHERE user_id = $1
	`, p.ID, p.DisplayName, p.Bio, p.Hometown, socials,
		pq.Array(compat.NormalizeInterests(p.Interests)), prefs)
	if err != nil {
		return fmt.Errorf("save profile %d: %w", p.ID, err)
	}
	return nil
}

// saveSurvey stores lifestyle answers. Completion is stamped the first time every
// answer is present and kept on later complete saves; removing an answer clears it.
func saveSurvey(ctx context.Context, db *sql.DB, userID int, l compat.Lifestyle) error {
	var completedAt interface{}
	if l.SurveyComplete() {
		completedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		UPDATE profiles
		SET cleanliness = $2, social_level = $3, sleep_schedule = $4, guest_frequency = $5,
		    smoking = $6, drinking = $7, pets = $8,
		    survey_completed_at = CASE WHEN $9::timestamptz IS NULL THEN NULL
		                               ELSE COALESCE(survey_completed_at, $9) END,
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, intArg(l.Cleanliness), intArg(l.SocialLevel), intArg(l.SleepSchedule), intArg(l.GuestFrequency),
		boolArg(l.Smoking), boolArg(l.Drinking), boolArg(l.Pets), completedAt)
	if err != nil {
		return fmt.Errorf("save survey %d: %w", userID, err)
	}
	return nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func intArg(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolArg(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func isNotFound(err error) bool {
	return errors.Is(err, errProfileNotFound) || errors.Is(err, errMatchNotFound)
}
