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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthGoogleCreatesUser(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, nil, &test.URLCacheMock{})

	param := models.GoogleAuthSignIn{
		IdToken:  "fake-google-id-token",
		Platform: "ios",
	}
	req := test.NewJSONRequest("POST", "/auth/google", param)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp models.GoogleSignInOut
	json.Unmarshal(rec.Body.Bytes(), &resp)

	assert.Equal(t, "fake@example.com", resp.Email, resp)
	assert.Equal(t, true, resp.New, resp)
	assert.Equal(t, "pictureurl", resp.Avatar, resp)
	assert.NotEmpty(t, resp.AccessToken, resp)
	assert.NotEmpty(t, resp.RefreshToken, resp)

	var user models.UserAccount
	db.First(&user, "email = ?", "fake@example.com")

	assert.Equal(t, "fake@example.com", user.Email)
	assert.Equal(t, "123googleid", user.GoogleID)
	assert.Equal(t, "ACTIVE", user.Status)
	assert.Equal(t, models.PlatformIOS, user.Platform)
	assert.Equal(t, "Fake Name", user.Name)
}

func TestAuthGoogleLinksExistingUserByEmail(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, nil, &test.URLCacheMock{})

	existing := test.FakeUserV2(db, "Old Name", "fake@example.com")

	param := models.GoogleAuthSignIn{
		IdToken:  "fake-google-id-token",
		Platform: "android",
	}
	req := test.NewJSONRequest("POST", "/auth/google", param)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp models.GoogleSignInOut
	json.Unmarshal(rec.Body.Bytes(), &resp)

	assert.Equal(t, false, resp.New, resp)
	assert.Equal(t, existing.ID, resp.Id)

	var user models.UserAccount
	db.First(&user, existing.ID)
	// the google identity got attached to the matched account
	assert.Equal(t, "123googleid", user.GoogleID)
	assert.Equal(t, models.PlatformAndroid, user.Platform)

	var count int64
	db.Model(&models.UserAccount{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAuthGoogleRejectsBadPlatform(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, nil, &test.URLCacheMock{})

	param := models.GoogleAuthSignIn{
		IdToken:  "fake-google-id-token",
		Platform: "blackberry",
	}
	req := test.NewJSONRequest("POST", "/auth/google", param)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefreshToken(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db)

	refreshToken, err := GenerateRefreshToken(fmt.Sprint(user.ID))
	require.NoError(t, err)

	req := test.NewJSONRequest("POST", "/auth/refresh-token", map[string]string{
		"refresh_token": refreshToken,
	})
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "Expected status code 200, got %d: %s", rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["access_token"])
	require.NotEmpty(t, resp["refresh_token"])
}

func TestRefreshTokenGarbage(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, nil, &test.URLCacheMock{})

	req := test.NewJSONRequest("POST", "/auth/refresh-token", map[string]string{
		"refresh_token": "not-a-jwt",
	})
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeWithoutSubject(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("GET", "/auth/me", strconv.FormatUint(uint64(user.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.UserMeInfoOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, user.ID, resp.Id)
	assert.Equal(t, user.Email, resp.Email)
	assert.False(t, resp.SubjectSet)
	assert.Nil(t, resp.SubjectURL)
}

func TestMeWithSubject(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{MockUrl: "https://fakebucketurl.com/subject.png"}, nil, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db)
	require.NoError(t, db.Create(&models.Subject{OwnerID: user.ID, ImageKey: fmt.Sprintf("users/%v/subject/1.png", user.ID)}).Error)

	req := test.NewJSONAuthRequest("GET", "/auth/me", strconv.FormatUint(uint64(user.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.UserMeInfoOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.SubjectSet)
	require.NotNil(t, resp.SubjectURL)
	assert.Equal(t, "https://fakebucketurl.com/subject.png", *resp.SubjectURL)
}

func TestDeleteAccountSchedules(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("POST", "/auth/delete-account", strconv.FormatUint(uint64(user.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var saved models.UserAccount
	require.NoError(t, db.First(&saved, user.ID).Error)
	require.NotNil(t, saved.ConfirmedDeleteDate)
}
