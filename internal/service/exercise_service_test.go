package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"rehabclinic/course-builder/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newExerciseFixture() (ExerciseService, *fakeExerciseRepo, *fakeStorage) {
	repo := newFakeExerciseRepo()
	store := &fakeStorage{}
	svc := NewExerciseService(repo, store, CatalogLimits{DefaultPageSize: 2, MaxPageSize: 3}, zap.NewNop())
	return svc, repo, store
}

func TestExerciseService_SearchPagesAndSignsImages(t *testing.T) {
	svc, repo, store := newExerciseFixture()
	author := primitive.NewObjectID()
	repo.seed(author, "Bridge", 5, "exercises/a.png")
	repo.seed(author, "Clamshell", 3, "")
	repo.seed(author, "Dead bug", 4, "exercises/broken.png")
	store.failKey = "exercises/broken.png"

	page, err := svc.Search(context.Background(), catalog.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.PageSize)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Bridge", page.Items[0].Title)
	assert.Equal(t, "https://cdn.test/exercises/a.png", page.Items[0].ImageURL)
	assert.Empty(t, page.Items[1].ImageURL)

	page, err = svc.Search(context.Background(), catalog.Query{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Dead bug", page.Items[0].Title)
	// An image that cannot be signed does not fail the page.
	assert.Empty(t, page.Items[0].ImageURL)
}

func TestExerciseService_SearchClampsPageSize(t *testing.T) {
	svc, _, _ := newExerciseFixture()
	page, err := svc.Search(context.Background(), catalog.Query{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 3, page.PageSize)
}

func TestExerciseService_SearchClampsPage(t *testing.T) {
	svc, repo, _ := newExerciseFixture()
	repo.seed(primitive.NewObjectID(), "Bridge", 5, "")

	page, err := svc.Search(context.Background(), catalog.Query{Page: math.MaxInt / 2})
	require.NoError(t, err)
	assert.Equal(t, MaxCatalogPage, page.Page)
	assert.Empty(t, page.Items)
	assert.EqualValues(t, 1, page.Total)
}

func TestExerciseService_SearchWrapsRepositoryError(t *testing.T) {
	svc, repo, _ := newExerciseFixture()
	boom := errors.New("connection reset")
	repo.searchErr = boom
	_, err := svc.Search(context.Background(), catalog.Query{})
	assert.ErrorIs(t, err, boom)
}

func TestExerciseService_Hit(t *testing.T) {
	svc, repo, _ := newExerciseFixture()
	id := repo.seed(primitive.NewObjectID(), "Bridge", 5, "k.png")

	hit, err := svc.Hit(context.Background(), id.Hex())
	require.NoError(t, err)
	assert.Equal(t, id.Hex(), hit.ExerciseID)
	assert.Equal(t, 5, hit.DurationMinutes)
	assert.Equal(t, "https://cdn.test/k.png", hit.ImageURL)

	_, err = svc.Hit(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, ErrExerciseNotFound)
	_, err = svc.Hit(context.Background(), primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrExerciseNotFound)
}

func TestExerciseService_CreateValidates(t *testing.T) {
	svc, _, _ := newExerciseFixture()
	_, err := svc.CreateExercise(context.Background(), primitive.NewObjectID(), ExerciseInput{Name: "  "})
	assert.ErrorIs(t, err, ErrValidationFailed)

	ex, err := svc.CreateExercise(context.Background(), primitive.NewObjectID(), ExerciseInput{Name: " Squat ", DurationMinutes: 2})
	require.NoError(t, err)
	assert.Equal(t, "Squat", ex.Name)
	assert.False(t, ex.ID.IsZero())
}

func TestExerciseService_ImageUpload(t *testing.T) {
	svc, repo, store := newExerciseFixture()
	author := primitive.NewObjectID()
	id := repo.seed(author, "Bridge", 5, "exercises/old.png")

	_, err := svc.RequestImageUploadURL(context.Background(), author, id, "text/plain")
	assert.ErrorIs(t, err, ErrInvalidContentType)

	_, err = svc.RequestImageUploadURL(context.Background(), primitive.NewObjectID(), id, "image/png")
	assert.ErrorIs(t, err, ErrExerciseAccessDenied)

	resp, err := svc.RequestImageUploadURL(context.Background(), author, id, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.ObjectKey, "exercises/"+id.Hex()+"/"))
	assert.True(t, strings.HasSuffix(resp.ObjectKey, ".png"))
	assert.Equal(t, "https://upload.test/"+resp.ObjectKey, resp.UploadURL)

	// Until the upload is confirmed the exercise keeps its old image.
	stored, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "exercises/old.png", stored.ImageKey)
	assert.Empty(t, store.deleted)
}

func TestExerciseService_ConfirmImageUpload(t *testing.T) {
	svc, repo, store := newExerciseFixture()
	ctx := context.Background()
	author := primitive.NewObjectID()
	id := repo.seed(author, "Bridge", 5, "exercises/old.png")

	resp, err := svc.RequestImageUploadURL(ctx, author, id, "image/png")
	require.NoError(t, err)

	_, err = svc.ConfirmImageUpload(ctx, author, id, resp.ObjectKey)
	assert.ErrorIs(t, err, ErrImageNotUploaded)

	tests := []struct {
		name string
		key  string
	}{
		{"other exercise", "exercises/" + primitive.NewObjectID().Hex() + "/a.png"},
		{"bare prefix", "exercises/" + id.Hex() + "/"},
		{"path escape", "exercises/" + id.Hex() + "/../x.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ConfirmImageUpload(ctx, author, id, tt.key)
			assert.ErrorIs(t, err, ErrInvalidImageKey)
		})
	}

	store.put(resp.ObjectKey)
	_, err = svc.ConfirmImageUpload(ctx, primitive.NewObjectID(), id, resp.ObjectKey)
	assert.ErrorIs(t, err, ErrExerciseAccessDenied)
	assert.Empty(t, store.deleted)

	ex, err := svc.ConfirmImageUpload(ctx, author, id, resp.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, resp.ObjectKey, ex.ImageKey)
	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, resp.ObjectKey, stored.ImageKey)
	assert.Equal(t, []string{"exercises/old.png"}, store.deleted)

	// Confirming again is a no-op.
	_, err = svc.ConfirmImageUpload(ctx, author, id, resp.ObjectKey)
	require.NoError(t, err)
	assert.Len(t, store.deleted, 1)
}

func TestExerciseService_Delete(t *testing.T) {
	svc, repo, store := newExerciseFixture()
	author := primitive.NewObjectID()
	id := repo.seed(author, "Bridge", 5, "exercises/a.png")

	assert.ErrorIs(t, svc.DeleteExercise(context.Background(), primitive.NewObjectID(), id), ErrExerciseAccessDenied)
	require.NoError(t, svc.DeleteExercise(context.Background(), author, id))
	assert.Equal(t, []string{"exercises/a.png"}, store.deleted)
	assert.ErrorIs(t, svc.DeleteExercise(context.Background(), author, id), ErrExerciseNotFound)
}
