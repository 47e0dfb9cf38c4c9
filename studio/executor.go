package studio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"cloonapi/models"
	"cloonapi/services"

	"github.com/getsentry/sentry-go"
)

// execute runs one task end to end: precondition check, input fetch, model
// dispatch, upload, optimistic insert and durable reconciliation. It never
// returns an error; every failure ends as a notice plus a notifier call.
func (s *Studio) execute(ctx context.Context, task *GenerationTask, epoch uint64) {
	s.mu.Lock()
	subject := s.subject
	s.mu.Unlock()
	if subject == nil {
		fmt.Printf("[Studio %v] task %s dropped, no subject set\n", s.userId, task.ID)
		s.addNotice(task.ID, "precondition", "Set up your model photo before generating looks")
		return
	}

	stopProgress := s.startProgress()
	defer stopProgress()

	result, err := s.dispatch(ctx, task, subject)
	if err != nil {
		var blocked *services.BlockedError
		if errors.As(err, &blocked) {
			fmt.Printf("[Studio %v] task %s blocked: %v\n", s.userId, task.ID, err)
			s.addNotice(task.ID, "blocked", "This combination was rejected by content filters")
			return
		}
		fmt.Printf("[Studio %v] task %s failed: %v\n", s.userId, task.ID, err)
		sentry.CaptureException(err)
		s.addNotice(task.ID, "failed", "Generation failed, please try again")
		if s.deps.Notifier != nil {
			s.deps.Notifier.GenerationFailed(s.userId, task.ID, err)
		}
		return
	}

	tempId := fmt.Sprintf("look-%d", time.Now().UnixNano())
	imageKey := fmt.Sprintf("users/%d/looks/%s.png", s.userId, tempId)
	if err := s.uploadImage(ctx, imageKey, result.Image.Data); err != nil {
		fmt.Printf("[Studio %v] task %s upload failed: %v\n", s.userId, task.ID, err)
		sentry.CaptureException(err)
		s.addNotice(task.ID, "failed", "Could not store the generated look")
		if s.deps.Notifier != nil {
			s.deps.Notifier.GenerationFailed(s.userId, task.ID, err)
		}
		return
	}

	garments := task.Garments
	if task.Kind == TaskVary {
		// a restyle keeps the outfit of its source look
		if source := s.findLook(task.SourceLookID); source != nil {
			garments = source.Garments
		}
	}

	// optimistic insert: the look shows up immediately under a placeholder
	// id while the durable write runs
	optimistic := models.LookRecord{
		ID:        tempId,
		ImageKey:  imageKey,
		Garments:  garments,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	if s.epoch != epoch {
		// subject was replaced mid-generation, this result belongs to a
		// studio that no longer exists
		s.mu.Unlock()
		fmt.Printf("[Studio %v] task %s finished after subject swap, result dropped\n", s.userId, task.ID)
		return
	}
	s.results = append([]models.LookRecord{optimistic}, s.results...)
	s.mu.Unlock()

	s.reconcile(ctx, task, tempId, imageKey, garments, result)
}

// reconcile persists the optimistic look and swaps in the durable id. If
// the user already deleted the optimistic entry, the fresh durable row is
// deleted again so local and durable state agree.
func (s *Studio) reconcile(ctx context.Context, task *GenerationTask, tempId string, imageKey string, garments []models.GarmentRef, result *services.SynthesisResult) {
	durable, err := s.deps.Store.CreateLook(ctx, s.userId, imageKey, garments, &services.LookUsage{
		Model:            result.Model,
		InputTokenCount:  result.InputTokenCount,
		OutputTokenCount: result.OutputTokenCount,
		TotalTokenCount:  result.TotalTokenCount,
	})
	if err != nil {
		// the look stays usable locally under its placeholder id
		fmt.Printf("[Studio %v] persist of look %s failed, keeping local copy: %v\n", s.userId, tempId, err)
		sentry.CaptureException(err)
		s.addNotice(task.ID, "failed", "Look generated but could not be saved to your account")
		return
	}

	s.mu.Lock()
	swapped := false
	for i, record := range s.results {
		if record.ID == tempId {
			s.results[i].ID = durable.ID
			s.results[i].CreatedAt = durable.CreatedAt
			swapped = true
			break
		}
	}
	s.mu.Unlock()

	if !swapped {
		fmt.Printf("[Studio %v] look %s deleted before persist finished, compensating\n", s.userId, tempId)
		if err := s.deps.Store.DeleteLook(ctx, s.userId, durable.ID); err != nil && err != services.ErrLookNotFound {
			sentry.CaptureException(err)
		}
		return
	}

	fmt.Printf("[Studio %v] task %s done, look %s\n", s.userId, task.ID, durable.ID)
	if s.deps.Notifier != nil {
		s.deps.Notifier.LookReady(s.userId, durable.ID)
	}
}

func (s *Studio) dispatch(ctx context.Context, task *GenerationTask, subject *models.SubjectRecord) (*services.SynthesisResult, error) {
	switch task.Kind {
	case TaskTryOn:
		if len(task.Garments) != 1 {
			return nil, fmt.Errorf("tryon task needs exactly one garment, got %d", len(task.Garments))
		}
		subjectImage, err := s.fetchImage(ctx, subject.ImageKey)
		if err != nil {
			return nil, err
		}
		item, err := s.fetchGarment(ctx, task.Garments[0])
		if err != nil {
			return nil, err
		}
		return s.deps.Compositor.ApplySingle(ctx, subjectImage, item)
	case TaskCompose:
		if len(task.Garments) == 0 {
			return nil, fmt.Errorf("compose task needs at least one garment")
		}
		subjectImage, err := s.fetchImage(ctx, subject.ImageKey)
		if err != nil {
			return nil, err
		}
		items := make([]services.GarmentInput, 0, len(task.Garments))
		for _, garment := range task.Garments {
			item, err := s.fetchGarment(ctx, garment)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return s.deps.Compositor.ComposeMany(ctx, subjectImage, items)
	case TaskVary:
		source := s.findLook(task.SourceLookID)
		if source == nil {
			return nil, fmt.Errorf("source look %s not found", task.SourceLookID)
		}
		lookImage, err := s.fetchImage(ctx, source.ImageKey)
		if err != nil {
			return nil, err
		}
		return s.deps.Compositor.Vary(ctx, lookImage, task.Pose, task.Mood)
	default:
		return nil, fmt.Errorf("unknown task kind %s", task.Kind)
	}
}

func (s *Studio) findLook(lookId string) *models.LookRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.results {
		if s.results[i].ID == lookId {
			copied := s.results[i]
			return &copied
		}
	}
	return nil
}

func (s *Studio) fetchGarment(ctx context.Context, garment models.GarmentRef) (services.GarmentInput, error) {
	image, err := s.fetchImage(ctx, garment.ImageKey)
	if err != nil {
		return services.GarmentInput{}, err
	}
	return services.GarmentInput{ID: garment.ItemID, Name: garment.Name, Image: image}, nil
}

func (s *Studio) fetchImage(ctx context.Context, objectKey string) (services.ImageData, error) {
	var url string
	var err error
	if s.deps.URLCache != nil {
		url, err = s.deps.URLCache.GetReadURL(ctx, objectKey)
	} else {
		url, err = s.deps.AWS.GetPresignedR2FileReadURL(ctx, s.deps.BucketName, objectKey)
	}
	if err != nil {
		return services.ImageData{}, fmt.Errorf("presign read of %s: %w", objectKey, err)
	}
	data, err := services.ReadFileFromUrl(url)
	if err != nil {
		return services.ImageData{}, fmt.Errorf("fetch of %s: %w", objectKey, err)
	}
	return services.ImageData{MIME: http.DetectContentType(data), Data: data}, nil
}

func (s *Studio) uploadImage(ctx context.Context, objectKey string, data []byte) error {
	uploadUrl, err := s.deps.AWS.PresignLink(ctx, s.deps.BucketName, objectKey)
	if err != nil {
		return fmt.Errorf("presign upload of %s: %w", objectKey, err)
	}
	_, status, err := s.deps.AWS.UploadToPresignedURL(ctx, s.deps.BucketName, uploadUrl, data)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("upload of %s returned status %d", objectKey, status)
	}
	return nil
}

// startProgress animates a synthetic progress value while a task runs. It
// climbs fast at first and crawls toward 90, never reaching it; real
// completion resets it. Purely cosmetic, the models give no mid-call signal.
func (s *Studio) startProgress() func() {
	s.mu.Lock()
	s.progress = 5
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(400 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				step := rand.Intn(6) + 2
				if s.progress+step > 90 {
					s.progress = 90
				} else {
					s.progress += step
				}
				s.mu.Unlock()
			}
		}
	}()
	return func() {
		close(done)
		s.mu.Lock()
		s.progress = 0
		s.mu.Unlock()
	}
}

// GenerateSubject turns a raw user photo into the studio's base model image
// and installs it via ReplaceSubject. Runs synchronously, outside the task
// queue: the studio has no usable state to protect before a subject exists,
// and a queued subject swap racing queued looks would be meaningless.
func (s *Studio) GenerateSubject(ctx context.Context, photoKey string) (*models.SubjectRecord, error) {
	photo, err := s.fetchImage(ctx, photoKey)
	if err != nil {
		return nil, err
	}
	result, err := s.deps.Compositor.GenerateSubject(ctx, photo)
	if err != nil {
		return nil, err
	}

	imageBytes := result.Image.Data
	if normalized, err := services.NormalizeSubjectBackground(imageBytes); err == nil {
		imageBytes = normalized
	} else {
		fmt.Printf("[Studio %v] background normalize failed, using raw image: %v\n", s.userId, err)
	}

	imageKey := fmt.Sprintf("users/%d/subject/%d.png", s.userId, time.Now().UnixNano())
	if err := s.uploadImage(ctx, imageKey, imageBytes); err != nil {
		return nil, err
	}
	return s.ReplaceSubject(ctx, imageKey)
}
