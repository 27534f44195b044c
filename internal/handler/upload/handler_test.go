package upload

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/service/directory"
	"github.com/zhouzirui/z-concierge/backend/internal/service/retrieval"
)

const usersCSV = "ID,FirstName,PhoneNumber,MothersMaidenName,FirstElementarySchoolName,FirstPetName\n" +
	"1,John,555-123-4567,Smith,Lincoln,Rex\n"

type countingObserver struct {
	ok, failed map[string]int
}

func (c *countingObserver) Upload(kind string, success bool) {
	if success {
		c.ok[kind]++
		return
	}
	c.failed[kind]++
}

type fixture struct {
	router   *chi.Mux
	dir      *directory.Directory
	library  *retrieval.Library
	observer *countingObserver
}

func setup() fixture {
	dir := directory.New()
	library := retrieval.NewLibrary(retrieval.DefaultOptions(), 3, nil)
	observer := &countingObserver{ok: map[string]int{}, failed: map[string]int{}}
	r := chi.NewRouter()
	New(dir, library, observer).RegisterRoutes(r)
	return fixture{router: r, dir: dir, library: library, observer: observer}
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for name, content := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func TestUploadUsersMultipart(t *testing.T) {
	f := setup()
	body, contentType := multipartBody(t, "file", map[string]string{"users.csv": usersCSV})
	req := httptest.NewRequest(http.MethodPost, "/uploads/users", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var got map[string]int
	_ = json.Unmarshal(resp.Body.Bytes(), &got)
	if got["rows"] != 1 {
		t.Fatalf("expected 1 row, got %+v", got)
	}
	if got := f.dir.Records().Match("555-123-4567", "john"); len(got) != 1 {
		t.Fatalf("uploaded record not installed")
	}
	if f.observer.ok["users"] != 1 {
		t.Fatalf("expected upload to be counted")
	}
}

func TestUploadTransactionsRawCSV(t *testing.T) {
	f := setup()
	csv := "UserID,OrderID,Amount\n1,o-1,10.00\n2,o-2,5.00\n"
	req := httptest.NewRequest(http.MethodPost, "/uploads/transactions", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := len(f.dir.Transactions().RowsFor("1")); got != 1 {
		t.Fatalf("expected 1 row for user 1, got %d", got)
	}
}

func TestUploadRejectsMalformedCSV(t *testing.T) {
	f := setup()
	req := httptest.NewRequest(http.MethodPost, "/uploads/users", strings.NewReader("ID,FirstName\n1,John\n"))
	req.Header.Set("Content-Type", "text/csv")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if f.dir.Records().Len() != 0 {
		t.Fatalf("rejected upload must not replace the table")
	}
	if f.observer.failed["users"] != 1 {
		t.Fatalf("expected failure to be counted")
	}
}

func TestUploadDocuments(t *testing.T) {
	f := setup()
	body, contentType := multipartBody(t, "files", map[string]string{
		"returns.txt":  "Returns are accepted within 30 days of delivery.",
		"shipping.txt": "Standard shipping takes three to five business days.",
	})
	req := httptest.NewRequest(http.MethodPost, "/uploads/documents/general_agent", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !f.library.Has(agent.General) {
		t.Fatalf("general index not loaded")
	}
	if f.library.Has(agent.PersonalConcierge) {
		t.Fatalf("personal index must stay empty")
	}
}

func TestUploadDocumentsErrors(t *testing.T) {
	f := setup()

	req := httptest.NewRequest(http.MethodPost, "/uploads/documents/sales_agent", strings.NewReader("text"))
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown agent, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/uploads/documents/general_agent", strings.NewReader("   "))
	resp = httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty document, got %d", resp.Code)
	}
}
