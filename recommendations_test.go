package main

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/roomie/backend/compat"
)

func lifestyleProfile(id, clean, social, sleep, guests int, smoking, drinking, pets bool, interests ...string) *compat.UserProfile {
	return &compat.UserProfile{
		ID:        id,
		Interests: interests,
		Lifestyle: compat.Lifestyle{
			Cleanliness: intp(clean), SocialLevel: intp(social), SleepSchedule: intp(sleep), GuestFrequency: intp(guests),
			Smoking: boolp(smoking), Drinking: boolp(drinking), Pets: boolp(pets),
		},
	}
}

func TestRankCandidates(t *testing.T) {
	me := lifestyleProfile(1, 5, 2, 4, 1, false, false, true, "hiking")

	// 2 and 5 match exactly, 3 is the opposite, 4 is in between, 6 is invalid
	profiles := map[int]*compat.UserProfile{
		1: me,
		2: lifestyleProfile(2, 5, 2, 4, 1, false, false, true, "hiking"),
		3: lifestyleProfile(3, 1, 5, 1, 5, true, true, false, "gaming"),
		4: lifestyleProfile(4, 3, 4, 4, 3, false, true, false, "hiking"),
		5: lifestyleProfile(5, 5, 2, 4, 1, false, false, true, "HIKING "),
		6: {ID: 6, Lifestyle: compat.Lifestyle{Cleanliness: intp(42)}},
	}

	got := rankCandidates(me, []int{5, 4, 3, 2, 6, 7}, profiles)

	ids := make([]int, len(got))
	for i, r := range got {
		ids[i] = r.UserID
		assert.GreaterOrEqual(t, r.OverallScore, recommendationThreshold)
	}
	assert.Equal(t, []int{2, 5, 4}, ids, "score desc then id asc, below threshold dropped")
	assert.Equal(t, 100, got[0].OverallScore)
	assert.Equal(t, 100, got[1].OverallScore)
}

func TestRankCandidatesLimit(t *testing.T) {
	me := lifestyleProfile(1, 3, 3, 3, 3, false, false, false)
	profiles := map[int]*compat.UserProfile{1: me}
	var ids []int
	for id := 2; id < 2+recommendationLimit+10; id++ {
		profiles[id] = lifestyleProfile(id, 3, 3, 3, 3, false, false, false)
		ids = append(ids, id)
	}

	got := rankCandidates(me, ids, profiles)
	require.Len(t, got, recommendationLimit)
	assert.Equal(t, 2, got[0].UserID)
	assert.Equal(t, 1+recommendationLimit, got[len(got)-1].UserID)
}

func TestRecommendationsHandler(t *testing.T) {
	t.Run("incomplete survey is gated", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`survey_completed_at IS NOT NULL FROM profiles`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"complete"}).AddRow(false))

		w := serve(recommendationsHandler(conn), authedRequest(t, http.MethodGet, "/recommendations", nil, 1))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "incomplete_survey", errorCode(t, w))
	})

	t.Run("scores candidates", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`survey_completed_at IS NOT NULL FROM profiles`).WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"complete"}).AddRow(true))
		mock.ExpectQuery(`FROM dismissed_recommendations d`).WithArgs(1, candidatePoolSize).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(2).AddRow(3))

		opposite := testLifestyle{clean: int64(1), social: int64(5), sleep: int64(1), guests: int64(5), smoking: true, drinking: true, pets: false}
		rows := profileRows(1, "alex", alexLifestyle, "{hiking,reading}")
		addProfileRow(rows, 2, "sam", samLifestyle, "{hiking,gaming}")
		addProfileRow(rows, 3, "kim", opposite, "{}")
		mock.ExpectQuery(`ANY\(\$1\)`).WithArgs(sqlmock.AnyArg()).WillReturnRows(rows)

		w := serve(recommendationsHandler(conn), authedRequest(t, http.MethodGet, "/recommendations", nil, 1))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body map[string][]RecommendationResult
		decodeBody(t, w, &body)
		require.Len(t, body["recommendations"], 1)
		assert.Equal(t, 2, body["recommendations"][0].UserID)
		assert.Equal(t, 65, body["recommendations"][0].OverallScore)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong method", func(t *testing.T) {
		conn, _ := newMockDB(t)
		w := serve(recommendationsHandler(conn), authedRequest(t, http.MethodPost, "/recommendations", nil, 1))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestDismissRecommendation(t *testing.T) {
	t.Run("dismisses", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(`INSERT INTO dismissed_recommendations`).WithArgs(1, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := serve(dismissRecommendationHandler(conn), authedRequest(t, http.MethodPost, "/recommendations/2/dismiss", nil, 1))
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup failure is a server error", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(2).WillReturnError(assert.AnError)
		w := serve(dismissRecommendationHandler(conn), authedRequest(t, http.MethodPost, "/recommendations/2/dismiss", nil, 1))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		w := serve(dismissRecommendationHandler(conn), authedRequest(t, http.MethodPost, "/recommendations/3/dismiss", nil, 1))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	for _, path := range []string{"/recommendations/1/dismiss", "/recommendations/abc/dismiss"} {
		t.Run(fmt.Sprintf("rejects %s", path), func(t *testing.T) {
			conn, _ := newMockDB(t)
			w := serve(dismissRecommendationHandler(conn), authedRequest(t, http.MethodPost, path, nil, 1))
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}
