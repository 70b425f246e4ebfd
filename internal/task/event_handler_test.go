package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/events"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/phrazzld/docreview-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTaskFactory mock implementation of TaskCreator
type MockTaskFactory struct {
	CreateTaskFn     func(ctx context.Context, jobID uuid.UUID) (Task, error)
	CreateTaskCalled bool
	LastJobID        uuid.UUID
}

func (m *MockTaskFactory) CreateTask(ctx context.Context, jobID uuid.UUID) (Task, error) {
	m.CreateTaskCalled = true
	m.LastJobID = jobID
	return m.CreateTaskFn(ctx, jobID)
}

// MockTaskRunner mock implementation of TaskSubmitter
type MockTaskRunner struct {
	SubmitFn       func(ctx context.Context, task Task) (*Handle, error)
	SubmitCalled   bool
	LastSubmitTask Task
}

func (m *MockTaskRunner) Submit(ctx context.Context, task Task) (*Handle, error) {
	m.SubmitCalled = true
	m.LastSubmitTask = task
	return m.SubmitFn(ctx, task)
}

func TestTaskFactoryEventHandler_HandleEvent(t *testing.T) {
	newEvent := func(t *testing.T, eventType string, jobID uuid.UUID) *events.TaskRequestEvent {
		return events.NewTaskRequestEvent(eventType, jobID)
	}

	t.Run("successfully handle document review event", func(t *testing.T) {
		jobID := uuid.New()
		mockTask := &MockTask{TaskID: jobID}
		mockFactory := &MockTaskFactory{
			CreateTaskFn: func(context.Context, uuid.UUID) (Task, error) { return mockTask, nil },
		}
		mockRunner := &MockTaskRunner{
			SubmitFn: func(context.Context, Task) (*Handle, error) { return &Handle{}, nil },
		}
		handler := NewTaskFactoryEventHandler(TaskTypeDocumentReview, mockFactory, mockRunner, testLogger)

		err := handler.HandleEvent(context.Background(), newEvent(t, TaskTypeDocumentReview, jobID))

		assert.NoError(t, err)
		assert.Equal(t, jobID, mockFactory.LastJobID)
		assert.True(t, mockRunner.SubmitCalled)
		assert.Equal(t, mockTask, mockRunner.LastSubmitTask)
	})

	t.Run("ignore unsupported event type", func(t *testing.T) {
		mockFactory := &MockTaskFactory{}
		mockRunner := &MockTaskRunner{}
		handler := NewTaskFactoryEventHandler(TaskTypeDocumentReview, mockFactory, mockRunner, testLogger)

		err := handler.HandleEvent(context.Background(), newEvent(t, "unsupported_type", uuid.New()))

		assert.NoError(t, err)
		assert.False(t, mockFactory.CreateTaskCalled)
		assert.False(t, mockRunner.SubmitCalled)
	})

	t.Run("missing job ID", func(t *testing.T) {
		mockFactory := &MockTaskFactory{}
		handler := NewTaskFactoryEventHandler(TaskTypeDocumentReview, mockFactory, &MockTaskRunner{}, testLogger)

		err := handler.HandleEvent(context.Background(), newEvent(t, TaskTypeDocumentReview, uuid.Nil))

		assert.ErrorIs(t, err, ErrEmptyJobID)
		assert.False(t, mockFactory.CreateTaskCalled)
	})

	t.Run("handle task creation failure", func(t *testing.T) {
		expectedErr := errors.New("task creation failed")
		mockFactory := &MockTaskFactory{
			CreateTaskFn: func(context.Context, uuid.UUID) (Task, error) { return nil, expectedErr },
		}
		mockRunner := &MockTaskRunner{}
		handler := NewTaskFactoryEventHandler(TaskTypeDocumentReview, mockFactory, mockRunner, testLogger)

		err := handler.HandleEvent(context.Background(), newEvent(t, TaskTypeDocumentReview, uuid.New()))

		assert.ErrorIs(t, err, expectedErr)
		assert.Contains(t, err.Error(), "failed to create task")
		assert.False(t, mockRunner.SubmitCalled)
	})

	t.Run("handle task submission failure", func(t *testing.T) {
		mockFactory := &MockTaskFactory{
			CreateTaskFn: func(_ context.Context, id uuid.UUID) (Task, error) { return &MockTask{TaskID: id}, nil },
		}
		mockRunner := &MockTaskRunner{
			SubmitFn: func(context.Context, Task) (*Handle, error) { return nil, ErrRunnerStopped },
		}
		handler := NewTaskFactoryEventHandler(TaskTypeDocumentReview, mockFactory, mockRunner, testLogger)

		err := handler.HandleEvent(context.Background(), newEvent(t, TaskTypeDocumentReview, uuid.New()))

		assert.ErrorIs(t, err, ErrRunnerStopped)
		assert.Contains(t, err.Error(), "failed to submit task")
	})
}

func TestReviewTaskFactory_CreateTask(t *testing.T) {
	jobs := store.NewMemoryJobStore(testLogger)
	catalog, err := generation.NewCatalog(generation.DefaultModeKey, generation.BuiltinModes()...)
	require.NoError(t, err)
	prompts, err := generation.NewPrompts("", "")
	require.NoError(t, err)

	bedrockFake := &namedGenerator{fakeGenerator: &fakeGenerator{}, name: generation.ProviderBedrock}
	factory := NewReviewTaskFactory(jobs, &fakeSource{}, catalog, generation.NewRegistry(bedrockFake),
		prompts, &fakeReports{}, nil, testLogger)

	source := domain.SourceDescriptor{Path: "p", Name: "a.txt", Size: 1, Format: domain.FormatText}

	t.Run("pending job with a known mode", func(t *testing.T) {
		job, err := jobs.Create(context.Background(), source, generation.DefaultModeKey)
		require.NoError(t, err)

		task, err := factory.CreateTask(context.Background(), job.ID)

		require.NoError(t, err)
		assert.Equal(t, job.ID, task.ID())
		assert.Equal(t, TaskTypeDocumentReview, task.Type())
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := factory.CreateTask(context.Background(), uuid.New())
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})

	t.Run("mode without registered provider", func(t *testing.T) {
		modes := append(generation.BuiltinModes(), generation.Mode{
			Key: "gemini-flash", Name: "Gemini Flash", Provider: generation.ProviderGemini, ModelID: "gemini-2.5-flash",
			MaxTokens: 100,
		})
		cat, err := generation.NewCatalog(generation.DefaultModeKey, modes...)
		require.NoError(t, err)
		f := NewReviewTaskFactory(jobs, &fakeSource{}, cat, generation.NewRegistry(bedrockFake),
			prompts, &fakeReports{}, nil, testLogger)

		job, err := jobs.Create(context.Background(), source, "gemini-flash")
		require.NoError(t, err)

		_, err = f.CreateTask(context.Background(), job.ID)
		assert.ErrorIs(t, err, generation.ErrUnknownProvider)
	})

	t.Run("job no longer pending", func(t *testing.T) {
		job, err := jobs.Create(context.Background(), source, generation.DefaultModeKey)
		require.NoError(t, err)
		failed := domain.JobStatusFailed
		_, err = jobs.Update(context.Background(), job.ID, domain.JobUpdate{
			Status:      &failed,
			FinalResult: &domain.Result{Status: domain.ResultStatusError},
		})
		require.NoError(t, err)

		_, err = factory.CreateTask(context.Background(), job.ID)
		assert.Error(t, err)
	})
}

// namedGenerator overrides the provider name of a fakeGenerator.
type namedGenerator struct {
	*fakeGenerator
	name string
}

func (g *namedGenerator) Name() string { return g.name }
