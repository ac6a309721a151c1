package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/qfitlab/qfit/internal/domain"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/modules/datasets"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandler(t *testing.T) (*Handler, *datasets.Repository) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := datasets.NewRepository(db, zerolog.Nop())
	require.NoError(t, err)

	bus := events.NewBus(zerolog.Nop())

	return NewHandler(repo, bus, zerolog.Nop()), repo
}

func TestHandleListEmpty(t *testing.T) {
	handler, _ := setupHandler(t)

	req := httptest.NewRequest("GET", "/api/datasets", nil)
	w := httptest.NewRecorder()

	handler.HandleList(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["count"])
	assert.NotNil(t, data["datasets"])
}

func TestHandleCreateAndGet(t *testing.T) {
	handler, _ := setupHandler(t)

	body := `{"name":"ramp","description":"demo","points":[{"x":0,"y":0},{"x":1,"y":1}]}`
	req := httptest.NewRequest("POST", "/api/datasets", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.HandleCreate(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	created := response["data"].(map[string]interface{})
	id := created["id"].(string)
	require.NotEmpty(t, id)

	getReq := httptest.NewRequest("GET", "/api/datasets/"+id, nil)
	getW := httptest.NewRecorder()
	handler.HandleGet(getW, getReq, id)

	assert.Equal(t, http.StatusOK, getW.Code)

	var getResponse map[string]interface{}
	require.NoError(t, json.Unmarshal(getW.Body.Bytes(), &getResponse))
	got := getResponse["data"].(map[string]interface{})
	assert.Equal(t, "ramp", got["name"])
	assert.Len(t, got["points"], 2)
}

func TestHandleCreateValidation(t *testing.T) {
	handler, _ := setupHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"missing name", `{"points":[{"x":0,"y":0},{"x":1,"y":1}]}`},
		{"too few points", `{"name":"tiny","points":[{"x":0,"y":0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/datasets", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.HandleCreate(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleCreateDuplicateName(t *testing.T) {
	handler, repo := setupHandler(t)

	require.NoError(t, repo.Create(&domain.Dataset{
		Name:   "taken",
		Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
	}))

	body := `{"name":"taken","points":[{"x":0,"y":0},{"x":1,"y":1}]}`
	req := httptest.NewRequest("POST", "/api/datasets", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.HandleCreate(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleGetMissing(t *testing.T) {
	handler, _ := setupHandler(t)

	req := httptest.NewRequest("GET", "/api/datasets/absent", nil)
	w := httptest.NewRecorder()

	handler.HandleGet(w, req, "absent")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDelete(t *testing.T) {
	handler, repo := setupHandler(t)

	ds := domain.Dataset{Name: "doomed", Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}}
	require.NoError(t, repo.Create(&ds))

	req := httptest.NewRequest("DELETE", "/api/datasets/"+ds.ID, nil)
	w := httptest.NewRecorder()

	handler.HandleDelete(w, req, ds.ID)

	assert.Equal(t, http.StatusOK, w.Code)

	got, err := repo.GetByID(ds.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandleDeleteMissing(t *testing.T) {
	handler, _ := setupHandler(t)

	req := httptest.NewRequest("DELETE", "/api/datasets/absent", nil)
	w := httptest.NewRecorder()

	handler.HandleDelete(w, req, "absent")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
