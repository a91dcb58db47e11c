package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"lostfound-go/internal/model"
	"lostfound-go/internal/service"
	"lostfound-go/pkg/imaging"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItemRouter(svc service.FeedService, maxUpload int64) *gin.Engine {
	h := NewItemHandler(svc, maxUpload)
	r := gin.New()
	r.POST("/items", withUser(testUser), h.Create)
	r.GET("/items", h.List)
	r.DELETE("/items/:id", withUser(testUser), h.Delete)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="itemImage"; filename="photo.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

var validFields = map[string]string{
	"itemName":      "Blue umbrella",
	"locationFound": "Library",
	"contactInfo":   "555-0100",
	"itemType":      "found",
}

func TestItemHandler_CreateWithImage(t *testing.T) {
	svc := &fakeFeedService{}
	body, ct := multipartBody(t, validFields, bytes.Repeat([]byte{1}, 300))
	req := httptest.NewRequest(http.MethodPost, "/items", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()

	newItemRouter(svc, 2<<20).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.posted, 1)
	got := svc.posted[0]
	assert.Equal(t, "Blue umbrella", got.ItemName)
	assert.Equal(t, "found", got.ItemType)
	require.NotNil(t, got.Image)
	assert.Equal(t, int64(300), got.Image.Size)
	assert.Equal(t, "image/png", got.Image.ContentType)
	assert.Equal(t, 300, svc.imageSize)
}

func TestItemHandler_CreateWithoutImage(t *testing.T) {
	svc := &fakeFeedService{}
	body, ct := multipartBody(t, validFields, nil)
	req := httptest.NewRequest(http.MethodPost, "/items", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()

	newItemRouter(svc, 2<<20).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.posted, 1)
	assert.Nil(t, svc.posted[0].Image)
}

func TestItemHandler_CreateBodyTooLarge(t *testing.T) {
	svc := &fakeFeedService{}
	body, ct := multipartBody(t, validFields, bytes.Repeat([]byte{1}, 3<<20))
	req := httptest.NewRequest(http.MethodPost, "/items", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()

	newItemRouter(svc, 1024).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, svc.posted)
}

func TestPostErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrMissingFields, http.StatusBadRequest},
		{service.ErrInvalidItemType, http.StatusBadRequest},
		{imaging.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{imaging.ErrNotAnImage, http.StatusUnsupportedMediaType},
		{imaging.ErrDecode, http.StatusUnprocessableEntity},
		{imaging.ErrStillTooLarge, http.StatusUnprocessableEntity},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, postErrorStatus(tt.err))
		})
	}
}

func TestItemHandler_List(t *testing.T) {
	svc := &fakeFeedService{result: service.FilterResult{
		Items: []model.Item{{ID: 3, ItemName: "Keys", ItemType: model.ItemTypeLost}},
		State: service.FilterStateOK,
		Total: 4,
	}}
	w := httptest.NewRecorder()

	newItemRouter(svc, 1024).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items?category=lost&search=key", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]string{"lost", "key"}, svc.lastFilter())
	var resp struct {
		Data struct {
			Items []model.Item `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "Keys", resp.Data.Items[0].ItemName)
}

func TestItemHandler_ListInvalidCategory(t *testing.T) {
	svc := &fakeFeedService{filterErr: service.ErrInvalidCategory}
	w := httptest.NewRecorder()

	newItemRouter(svc, 1024).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items?category=misc", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestItemHandler_Delete(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"ok", "/items/3", nil, http.StatusOK},
		{"bad_id", "/items/abc", nil, http.StatusBadRequest},
		{"not_found", "/items/3", service.ErrItemNotFound, http.StatusNotFound},
		{"forbidden", "/items/3", service.ErrForbidden, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newItemRouter(&fakeFeedService{deleteErr: tt.err}, 1024).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
