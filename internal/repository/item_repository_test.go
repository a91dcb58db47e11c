package repository

import (
	"testing"
	"time"

	"lostfound-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedItems(t *testing.T, repo ItemRepository, n int) []model.Item {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	items := make([]model.Item, 0, n)
	for i := 0; i < n; i++ {
		it := model.Item{
			ItemName:      "item",
			LocationFound: "library",
			ContactInfo:   "555",
			ItemType:      model.ItemTypeFound,
			PostedBy:      "a@psvpec.in",
			PostedByName:  "A",
			PosterID:      1,
			ImageObject:   "",
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(&it))
		items = append(items, it)
	}
	return items
}

func TestItemRepository_ListNewestOrdersByTimestamp(t *testing.T) {
	repo := NewItemRepository(newTestDB(t))
	seeded := seedItems(t, repo, 5)

	got, err := repo.ListNewest(3)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, seeded[4].ID, got[0].ID)
	assert.Equal(t, seeded[3].ID, got[1].ID)
	assert.Equal(t, seeded[2].ID, got[2].ID)
}

func TestItemRepository_FindAndDelete(t *testing.T) {
	repo := NewItemRepository(newTestDB(t))
	seeded := seedItems(t, repo, 1)

	found, err := repo.FindByID(seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "library", found.LocationFound)

	require.NoError(t, repo.Delete(seeded[0].ID))
	_, err = repo.FindByID(seeded[0].ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestItemRepository_UpdateImageURL(t *testing.T) {
	repo := NewItemRepository(newTestDB(t))
	seeded := seedItems(t, repo, 1)

	url := "data:image/jpeg;base64,AAAA"
	it := seeded[0]
	it.ImageURL = &url
	it.ImageObject = "items/1.jpg"
	require.NoError(t, repo.Update(&it))

	found, err := repo.FindByID(it.ID)
	require.NoError(t, err)
	require.NotNil(t, found.ImageURL)
	assert.Equal(t, url, *found.ImageURL)
	assert.Equal(t, "items/1.jpg", found.ImageObject)
}

func TestItemRepository_PruneBeyondKeepsNewest(t *testing.T) {
	repo := NewItemRepository(newTestDB(t))
	seeded := seedItems(t, repo, 6)

	stale, err := repo.PruneBeyond(4)
	require.NoError(t, err)

	require.Len(t, stale, 2)
	assert.Equal(t, seeded[1].ID, stale[0].ID)
	assert.Equal(t, seeded[0].ID, stale[1].ID)

	remaining, err := repo.ListNewest(100)
	require.NoError(t, err)
	require.Len(t, remaining, 4)
	assert.Equal(t, seeded[5].ID, remaining[0].ID)
	assert.Equal(t, seeded[2].ID, remaining[3].ID)
}

func TestItemRepository_PruneBeyondUnderLimit(t *testing.T) {
	repo := NewItemRepository(newTestDB(t))
	seedItems(t, repo, 3)

	stale, err := repo.PruneBeyond(50)
	require.NoError(t, err)
	assert.Empty(t, stale)

	remaining, err := repo.ListNewest(100)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}
