package question

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockQuestionService struct {
	createFn         func(ctx context.Context, in UpsertQuestionInput) (*Question, error)
	updateFn         func(ctx context.Context, id int64, in UpsertQuestionInput) (*Question, error)
	deleteFn         func(ctx context.Context, id int64) error
	getFn            func(ctx context.Context, id int64) (*Question, error)
	listFn           func(ctx context.Context, f ListFilter) ([]Question, error)
	findDuplicatesFn func(ctx context.Context, licenseClass string) ([]DuplicateCluster, error)
	refreshHashesFn  func(ctx context.Context) (int, error)
	importExcelFn    func(ctx context.Context, r io.Reader) (*ImportReport, error)
	exportExcelFn    func(ctx context.Context, licenseClass string) ([]byte, error)
}

func (m *mockQuestionService) Create(ctx context.Context, in UpsertQuestionInput) (*Question, error) {
	if m.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createFn(ctx, in)
}

func (m *mockQuestionService) Update(ctx context.Context, id int64, in UpsertQuestionInput) (*Question, error) {
	if m.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateFn(ctx, id, in)
}

func (m *mockQuestionService) Delete(ctx context.Context, id int64) error {
	if m.deleteFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteFn(ctx, id)
}

func (m *mockQuestionService) Get(ctx context.Context, id int64) (*Question, error) {
	if m.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getFn(ctx, id)
}

func (m *mockQuestionService) List(ctx context.Context, f ListFilter) ([]Question, error) {
	if m.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listFn(ctx, f)
}

func (m *mockQuestionService) FindDuplicates(ctx context.Context, licenseClass string) ([]DuplicateCluster, error) {
	if m.findDuplicatesFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.findDuplicatesFn(ctx, licenseClass)
}

func (m *mockQuestionService) RefreshHashes(ctx context.Context) (int, error) {
	if m.refreshHashesFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.refreshHashesFn(ctx)
}

func (m *mockQuestionService) ImportExcel(ctx context.Context, r io.Reader) (*ImportReport, error) {
	if m.importExcelFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.importExcelFn(ctx, r)
}

func (m *mockQuestionService) ExportExcel(ctx context.Context, licenseClass string) ([]byte, error) {
	if m.exportExcelFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportExcelFn(ctx, licenseClass)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestListPassesFilter(t *testing.T) {
	var gotFilter ListFilter
	h := NewHandler(&mockQuestionService{
		listFn: func(ctx context.Context, f ListFilter) ([]Question, error) {
			gotFilter = f
			return []Question{{ID: 1, DisplayNumber: "T1A01"}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/questions?license_class=technician&subelement=T1&group=A&active=true&limit=50", nil)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotFilter.LicenseClass != "technician" || gotFilter.Subelement != "T1" || gotFilter.Group != "A" {
		t.Fatalf("unexpected filter: %+v", gotFilter)
	}
	if !gotFilter.ActiveOnly || gotFilter.Limit != 50 {
		t.Fatalf("unexpected filter flags: %+v", gotFilter)
	}
}

func TestGetBadID(t *testing.T) {
	h := NewHandler(&mockQuestionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/questions/abc", nil)
	req = withChiParam(req, "id", "abc")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetNotFound(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		getFn: func(ctx context.Context, id int64) (*Question, error) {
			return nil, ErrQuestionNotFound
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/questions/42", nil)
	req = withChiParam(req, "id", "42")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCreateDuplicateNumberConflict(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		createFn: func(ctx context.Context, in UpsertQuestionInput) (*Question, error) {
			return nil, ErrDuplicateNumber
		},
	})

	payload := []byte(`{"display_number":"T1A01","license_class":"technician","question_text":"q","option_a":"a","option_b":"b","option_c":"c","option_d":"d","correct_answer":"A"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/questions", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestCreateInvalidInput(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		createFn: func(ctx context.Context, in UpsertQuestionInput) (*Question, error) {
			return nil, ErrInvalidInput
		},
	})

	payload := []byte(`{"display_number":"bogus"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/questions", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestImportExcelRequiresFile(t *testing.T) {
	h := NewHandler(&mockQuestionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/questions/import", strings.NewReader("no multipart"))
	w := httptest.NewRecorder()

	h.ImportExcel(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestImportExcelReportsRows(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		importExcelFn: func(ctx context.Context, r io.Reader) (*ImportReport, error) {
			return &ImportReport{TotalRows: 3, CreatedRows: 2, UpdatedRows: 1}, nil
		},
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "questions.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("stub")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/questions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	h.ImportExcel(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data, _ := body["data"].(map[string]interface{})
	if data == nil || data["total_rows"] != float64(3) {
		t.Fatalf("unexpected report payload: %v", body)
	}
}

func TestExportExcelSetsHeaders(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		exportExcelFn: func(ctx context.Context, licenseClass string) ([]byte, error) {
			return []byte("xlsx-bytes"), nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/questions/export?license_class=general", nil)
	w := httptest.NewRecorder()

	h.ExportExcel(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "questions_general.xlsx") {
		t.Fatalf("unexpected content disposition: %s", cd)
	}
}

func TestRefreshHashesOK(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		refreshHashesFn: func(ctx context.Context) (int, error) { return 4, nil },
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/questions/refresh-hashes", nil)
	w := httptest.NewRecorder()

	h.RefreshHashes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
