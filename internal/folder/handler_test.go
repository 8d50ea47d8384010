package folder

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/pkg/domain"
	"assessor/pkg/testutil"
)

const handlerOrg = domain.OrgDomain("payments.example.com")

func newTestRouter() chi.Router {
	svc := NewService(NewInMemory(nil))
	r := chi.NewRouter()
	NewHandler(svc).Register(r)
	return r
}

func TestCreateThenGetFolder(t *testing.T) {
	router := newTestRouter()

	req := testutil.NewJSONRequest(t, http.MethodPost, "/folders", map[string]string{"name": "production accounts"})
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created struct {
		FolderID string `json:"folderId"`
		Name     string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.FolderID)
	assert.Equal(t, "production accounts", created.Name)

	req = testutil.NewRequest(t, http.MethodGet, "/folders/"+created.FolderID)
	rr = testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "production accounts")
}

func TestCreateFolderValidation(t *testing.T) {
	router := newTestRouter()

	testutil.Given(t, "a blank folder name", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/folders", map[string]string{"name": "   "})
		rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	testutil.Given(t, "a malformed body", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/folders", "{not json")
		rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestDuplicateNameConflictsOverHTTP(t *testing.T) {
	router := newTestRouter()

	req := testutil.NewJSONRequest(t, http.MethodPost, "/folders", map[string]string{"name": "sandbox"})
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusCreated, rr.Code)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/folders", map[string]string{"name": "sandbox"})
	rr = testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRenameAndDeleteFolder(t *testing.T) {
	router := newTestRouter()

	req := testutil.NewJSONRequest(t, http.MethodPost, "/folders", map[string]string{"name": "old name"})
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		FolderID string `json:"folderId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	req = testutil.NewJSONRequest(t, http.MethodPut, "/folders/"+created.FolderID, map[string]string{"name": "new name"})
	rr = testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = testutil.NewRequest(t, http.MethodDelete, "/folders/"+created.FolderID)
	rr = testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = testutil.NewRequest(t, http.MethodGet, "/folders/"+created.FolderID)
	rr = testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListFoldersPagesByName(t *testing.T) {
	router := newTestRouter()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/folders", map[string]string{"name": name})
		rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	var page struct {
		Folders []struct {
			Name string `json:"name"`
		} `json:"folders"`
		NextCursor string `json:"nextCursor"`
	}

	req := testutil.NewRequest(t, http.MethodGet, "/folders?limit=2")
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Folders, 2)
	assert.Equal(t, "alpha", page.Folders[0].Name)
	assert.Equal(t, "bravo", page.Folders[1].Name)
	require.NotEmpty(t, page.NextCursor)

	req = testutil.NewRequest(t, http.MethodGet, "/folders?limit=2&cursor="+page.NextCursor)
	rr = testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Folders, 1)
	assert.Equal(t, "charlie", page.Folders[0].Name)
}
