package studio

import (
	"fmt"
	"time"

	"cloonapi/models"
)

type TaskKind string

const (
	// TaskTryOn applies one wardrobe item to the subject.
	TaskTryOn TaskKind = "tryon"
	// TaskCompose dresses the subject in several items at once.
	TaskCompose TaskKind = "compose"
	// TaskVary restyles an existing look with a new pose or scene.
	TaskVary TaskKind = "vary"
)

// GenerationTask is one queued unit of work. Tasks are immutable after
// enqueue, the executor only reads them.
type GenerationTask struct {
	ID         string
	Kind       TaskKind
	EnqueuedAt time.Time

	// tryon and compose
	Garments []models.GarmentRef

	// vary
	SourceLookID string
	Pose         string
	Mood         string
}

func newTaskID(kind TaskKind) string {
	return fmt.Sprintf("%s-%d", kind, time.Now().UnixNano())
}

func NewTryOnTask(garment models.GarmentRef) *GenerationTask {
	return &GenerationTask{
		ID:         newTaskID(TaskTryOn),
		Kind:       TaskTryOn,
		EnqueuedAt: time.Now(),
		Garments:   []models.GarmentRef{garment},
	}
}

func NewComposeTask(garments []models.GarmentRef) *GenerationTask {
	return &GenerationTask{
		ID:         newTaskID(TaskCompose),
		Kind:       TaskCompose,
		EnqueuedAt: time.Now(),
		Garments:   garments,
	}
}

func NewVaryTask(sourceLookID string, pose string, mood string) *GenerationTask {
	return &GenerationTask{
		ID:           newTaskID(TaskVary),
		Kind:         TaskVary,
		EnqueuedAt:   time.Now(),
		SourceLookID: sourceLookID,
		Pose:         pose,
		Mood:         mood,
	}
}
