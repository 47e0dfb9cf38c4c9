package tasks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"cloonapi/dbhelper"
	"cloonapi/models"
	"cloonapi/test"

	"github.com/stretchr/testify/assert"
)

func TestWardrobeAnalysisTask(t *testing.T) {
	os.Setenv("GOOGLE_API_KEY", "fake-key")
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	user := test.FakeUser(db)
	item := test.FakeWardrobeItem(db, user.ID, "White Tee")
	item.ProcessingStatus = "analyzing"
	db.Save(&item)

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(test.TinyPNG())
	}))
	defer mockServer.Close()

	fakeTask, err := NewWardrobeAnalysisTask(item.ID)
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}

	err = HandleWardrobeAnalysisTask(context.Background(), fakeTask, db, test.LLMProcessorMock{}, awsServiceMock, nil)
	assert.NoError(t, err)

	var updated models.WardrobeItem
	err = db.Where("id = ?", item.ID).First(&updated).Error
	assert.NoError(t, err)
	assert.Equal(t, "completed", updated.ProcessingStatus)
	assert.True(t, updated.ItemDetected)
	assert.Equal(t, "top", *updated.Category)
	assert.Equal(t, "t-shirt", *updated.SubCategory)
	assert.Equal(t, "white", *updated.MainColor)
	assert.Contains(t, []string(updated.SearchTags), "casual")
	assert.NotEmpty(t, *updated.DensePrompt)
	assert.Nil(t, updated.ProcessErrorMessage)
}

func TestWardrobeAnalysisTaskNoItemDetected(t *testing.T) {
	os.Setenv("GOOGLE_API_KEY", "fake-key")
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	user := test.FakeUser(db)
	item := test.FakeWardrobeItem(db, user.ID, "Empty Photo")

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(test.TinyPNG())
	}))
	defer mockServer.Close()

	fakeTask, err := NewWardrobeAnalysisTask(item.ID)
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}

	processor := test.LLMProcessorMock{AnalysisJSON: `{
		"item_detected": false,
		"category": "",
		"sub_category": "",
		"main_color": "",
		"attributes": [],
		"search_tags": [],
		"dense_generation_prompt": ""
	}`}
	err = HandleWardrobeAnalysisTask(context.Background(), fakeTask, db, processor, awsServiceMock, nil)
	assert.NoError(t, err)

	var updated models.WardrobeItem
	err = db.Where("id = ?", item.ID).First(&updated).Error
	assert.NoError(t, err)
	assert.Equal(t, "failed", updated.ProcessingStatus)
	assert.False(t, updated.ItemDetected)
	assert.Equal(t, "No clothing item detected in the photo", *updated.ProcessErrorMessage)
}
