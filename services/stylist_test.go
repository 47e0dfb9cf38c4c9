package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreOutfit(t *testing.T) {
	c := &GenerationCompositor{
		Analyzer: cannedAnalyzer{response: `{"score": 8.5, "explanation": "Sharp layering, the boots anchor the palette."}`},
	}

	score, err := c.ScoreOutfit(context.Background(), subjectImage())
	assert.NoError(t, err)
	assert.Equal(t, 8.5, score.Score)
	assert.Contains(t, score.Explanation, "layering")
}

func TestScoreOutfitAnalysisError(t *testing.T) {
	c := &GenerationCompositor{Analyzer: cannedAnalyzer{err: fmt.Errorf("model down")}}

	score, err := c.ScoreOutfit(context.Background(), subjectImage())
	assert.Error(t, err)
	assert.Nil(t, score)
}

func TestScoreOutfitBadJSON(t *testing.T) {
	c := &GenerationCompositor{Analyzer: cannedAnalyzer{response: "not json"}}

	score, err := c.ScoreOutfit(context.Background(), subjectImage())
	assert.Error(t, err)
	assert.Nil(t, score)
}
