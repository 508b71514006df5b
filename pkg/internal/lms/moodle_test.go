package lms_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yeisme/exambridge/pkg/configs"
	"github.com/yeisme/exambridge/pkg/internal/lms"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*lms.MoodleClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := configs.LMSConfig{
		BaseURL:    server.URL,
		Timeout:    5,
		Service:    "exam_submission",
		AdminToken: "admin-token",
	}

	return lms.NewMoodleClient(cfg), server
}

// TestAuthenticate 测试令牌获取.
func TestAuthenticate(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/login/token.php") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		_ = r.ParseForm()
		if r.PostFormValue("username") != "student1" {
			t.Errorf("unexpected username: %s", r.PostFormValue("username"))
		}

		fmt.Fprint(w, `{"token":"tok-abc"}`)
	})

	token, err := client.Authenticate(context.Background(), lms.Credential{Username: "student1", Password: "pw"})
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	if token != "tok-abc" {
		t.Errorf("unexpected token: %s", token)
	}
}

// TestAuthenticate_InvalidLogin 测试凭据错误.
func TestAuthenticate_InvalidLogin(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"Invalid login","errorcode":"invalidlogin"}`)
	})

	_, err := client.Authenticate(context.Background(), lms.Credential{Username: "student1", Password: "bad"})
	if err == nil {
		t.Fatal("expected error for invalid login")
	}

	var apiErr *lms.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}

	if apiErr.Code != "invalidlogin" {
		t.Errorf("unexpected error code: %s", apiErr.Code)
	}

	if lms.IsTransient(err) {
		t.Error("invalid login must not be transient")
	}
}

// TestGetIdentity 测试按学号解析用户.
func TestGetIdentity(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostFormValue("wsfunction") != "core_user_get_users_by_field" {
			t.Errorf("unexpected wsfunction: %s", r.PostFormValue("wsfunction"))
		}

		if r.PostFormValue("wstoken") != "admin-token" {
			t.Errorf("expected admin token, got %s", r.PostFormValue("wstoken"))
		}

		fmt.Fprint(w, `[{"id":77,"username":"student1","fullname":"Student One"}]`)
	})

	identity, err := client.GetIdentity(context.Background(), "202412030156")
	if err != nil {
		t.Fatalf("get identity failed: %v", err)
	}

	if identity.UserID != 77 || identity.Username != "student1" {
		t.Errorf("unexpected identity: %+v", identity)
	}
}

// TestGetIdentity_NotFound 测试学号不存在.
func TestGetIdentity_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	_, err := client.GetIdentity(context.Background(), "000000000000")
	if err == nil {
		t.Fatal("expected error for unknown idnumber")
	}
}

// TestUploadDraft 测试草稿上传与草稿项复用.
func TestUploadDraft(t *testing.T) {
	var gotItemID string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/webservice/upload.php") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		gotItemID = r.URL.Query().Get("itemid")

		fmt.Fprint(w, `[{"itemid":123456}]`)
	})

	// 首次上传不带 itemid
	itemID, err := client.UploadDraft(context.Background(), "tok", nil, "202412030156_MATH101.pdf",
		strings.NewReader("%PDF-1.4"), 8)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if itemID != 123456 {
		t.Errorf("unexpected item id: %d", itemID)
	}

	if gotItemID != "" {
		t.Errorf("first upload should not carry itemid, got %s", gotItemID)
	}

	// 续传复用草稿项
	reuse := int64(123456)

	_, err = client.UploadDraft(context.Background(), "tok", &reuse, "202412030156_MATH101.pdf",
		strings.NewReader("%PDF-1.4"), 8)
	if err != nil {
		t.Fatalf("reupload failed: %v", err)
	}

	if gotItemID != "123456" {
		t.Errorf("expected itemid reuse, got %q", gotItemID)
	}
}

// TestGetSubmissionStatus 测试提交状态解析.
func TestGetSubmissionStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"lastattempt": {
				"cansubmit": true,
				"submission": {
					"id": 9001,
					"status": "draft",
					"plugins": [
						{"type":"file","fileareas":[{"files":[{"filename":"scan.pdf"}]}]},
						{"type":"comments","fileareas":[]}
					]
				}
			}
		}`)
	})

	status, err := client.GetSubmissionStatus(context.Background(), 301, 77)
	if err != nil {
		t.Fatalf("get submission status failed: %v", err)
	}

	if status.Status != "draft" {
		t.Errorf("unexpected status: %s", status.Status)
	}

	if status.AttachedFiles != 1 {
		t.Errorf("expected 1 attached file, got %d", status.AttachedFiles)
	}

	if !status.CanFinalize {
		t.Error("expected can_finalize true")
	}

	if status.SubmissionID != "9001" {
		t.Errorf("unexpected submission id: %s", status.SubmissionID)
	}

	if status.Submitted() {
		t.Error("draft status must not count as submitted")
	}
}

// TestVerifyTarget 测试作业目标校验.
func TestVerifyTarget(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"courses":[{"assignments":[{"id":301,"duedate":4102444800,"cutoffdate":0}]}]}`)
	})

	status, err := client.VerifyTarget(context.Background(), 301)
	if err != nil {
		t.Fatalf("verify target failed: %v", err)
	}

	if !status.Open {
		t.Error("expected assignment to be open")
	}

	// 不存在的作业
	if _, err := client.VerifyTarget(context.Background(), 999); err == nil {
		t.Error("expected error for missing assignment")
	}
}

// TestMoodleException 测试 Moodle 异常响应转换为 APIError.
func TestMoodleException(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"exception":"moodle_exception","errorcode":"sitemaintenance","message":"Site under maintenance"}`)
	})

	_, err := client.GetIdentity(context.Background(), "202412030156")
	if err == nil {
		t.Fatal("expected exception to surface as error")
	}

	if !lms.IsTransient(err) {
		t.Error("maintenance error should be transient")
	}
}

// TestIsTransient 测试瞬时错误分类.
func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&lms.APIError{Code: "moodleoff", Message: "down"}, true},
		{&lms.APIError{Code: "sitemaintenance", Message: "maintenance"}, true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("context deadline exceeded (timeout)"), true},
		{&lms.APIError{Code: "unavailable", Message: "remote returned 503"}, true},
		{&lms.APIError{Code: "invalidlogin", Message: "Invalid login"}, false},
		{errors.New("assignment 999 not found"), false},
		{nil, false},
	}

	for _, c := range cases {
		if got := lms.IsTransient(c.err); got != c.want {
			t.Errorf("IsTransient(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
