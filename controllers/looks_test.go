package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"cloonapi/dbhelper"
	"cloonapi/models"
	"cloonapi/test"

	"github.com/stretchr/testify/require"
)

func TestListAndDeleteLook(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupStudioServer(t, db)
	user := test.FakeUser(db)
	userPk := strconv.FormatUint(uint64(user.ID), 10)

	subjectReq := test.NewJSONAuthRequest("POST", "/studio/subject", userPk, models.SubjectGenerateIn{
		PhotoKey: "users/1/subject/uploads/123-selfie.jpg",
	})
	subjectRec := httptest.NewRecorder()
	e.ServeHTTP(subjectRec, subjectReq)
	require.Equal(t, http.StatusCreated, subjectRec.Code)

	listReq := test.NewJSONAuthRequest("GET", "/looks/list", userPk, "")
	listRec := httptest.NewRecorder()
	e.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code, "Expected status code 200, got %d: %s", listRec.Code, listRec.Body.String())

	var response struct {
		Looks []models.LookRecord `json:"looks"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &response))
	require.Len(t, response.Looks, 1)
	require.NotEmpty(t, response.Looks[0].ImageURL)

	deleteReq := test.NewJSONAuthRequest("DELETE", fmt.Sprintf("/looks/%s", response.Looks[0].ID), userPk, "")
	deleteRec := httptest.NewRecorder()
	e.ServeHTTP(deleteRec, deleteReq)
	require.Equal(t, http.StatusOK, deleteRec.Code, "Expected status code 200, got %d: %s", deleteRec.Code, deleteRec.Body.String())

	listRec = httptest.NewRecorder()
	e.ServeHTTP(listRec, test.NewJSONAuthRequest("GET", "/looks/list", userPk, ""))
	require.Equal(t, http.StatusOK, listRec.Code)
	response.Looks = nil
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &response))
	require.Len(t, response.Looks, 0)

	var lookCount int64
	db.Model(&models.Look{}).Where("owner_id = ?", user.ID).Count(&lookCount)
	require.Equal(t, int64(0), lookCount)
}

func TestStyleScoreLook(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupStudioServerWithProcessor(t, db, test.LLMProcessorMock{
		AnalysisJSON: `{"score": 7.5, "explanation": "Minimal and clean, a bolder shoe would lift it."}`,
	})
	user := test.FakeUser(db)
	userPk := strconv.FormatUint(uint64(user.ID), 10)

	subjectReq := test.NewJSONAuthRequest("POST", "/studio/subject", userPk, models.SubjectGenerateIn{
		PhotoKey: "users/1/subject/uploads/123-selfie.jpg",
	})
	subjectRec := httptest.NewRecorder()
	e.ServeHTTP(subjectRec, subjectReq)
	require.Equal(t, http.StatusCreated, subjectRec.Code)

	listRec := httptest.NewRecorder()
	e.ServeHTTP(listRec, test.NewJSONAuthRequest("GET", "/looks/list", userPk, ""))
	var listed struct {
		Looks []models.LookRecord `json:"looks"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	require.Len(t, listed.Looks, 1)

	scoreReq := test.NewJSONAuthRequest("GET", fmt.Sprintf("/looks/%s/style", listed.Looks[0].ID), userPk, "")
	scoreRec := httptest.NewRecorder()
	e.ServeHTTP(scoreRec, scoreReq)
	require.Equal(t, http.StatusOK, scoreRec.Code, "Expected status code 200, got %d: %s", scoreRec.Code, scoreRec.Body.String())

	var score models.StyleScoreOut
	require.NoError(t, json.Unmarshal(scoreRec.Body.Bytes(), &score))
	require.Equal(t, 7.5, score.Score)
	require.Contains(t, score.Explanation, "bolder shoe")
}

func TestStyleScoreUnknownLook(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupStudioServer(t, db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("GET", "/looks/999999/style", strconv.FormatUint(uint64(user.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUnknownLookReturns404(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupStudioServer(t, db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("DELETE", "/looks/999999", strconv.FormatUint(uint64(user.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
