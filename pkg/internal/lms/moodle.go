package lms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sony/gobreaker"

	"github.com/yeisme/exambridge/pkg/configs"
	"github.com/yeisme/exambridge/pkg/metrics"
)

const (
	restEndpoint   = "/webservice/rest/server.php"
	uploadEndpoint = "/webservice/upload.php"
	tokenEndpoint  = "/login/token.php"
)

// MoodleClient 基于 Moodle Web Service REST 协议的客户端实现.
type MoodleClient struct {
	cfg     configs.LMSConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ Client = (*MoodleClient)(nil)

// NewMoodleClient 创建 Moodle 客户端，按配置启用熔断器.
func NewMoodleClient(cfg configs.LMSConfig) *MoodleClient {
	c := &MoodleClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.GetTimeoutDuration(),
		},
	}

	if cfg.Breaker.Enabled {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "lms",
			MaxRequests: uint32(cfg.Breaker.MaxRequests),
			Interval:    time.Duration(cfg.Breaker.Interval) * time.Second,
			Timeout:     time.Duration(cfg.Breaker.Timeout) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cfg.Breaker.MaxFailures)
			},
		})
	}

	return c
}

// doRequest 执行 HTTP 请求，可选经过熔断器.
func (c *MoodleClient) doRequest(req *http.Request, operation string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.LMSRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	run := func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("lms request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read lms response: %w", err)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &APIError{Code: "unavailable", Message: fmt.Sprintf("remote returned %d", resp.StatusCode)}
		}

		return body, nil
	}

	var (
		result any
		err    error
	)

	if c.breaker != nil {
		result, err = c.breaker.Execute(run)
	} else {
		result, err = run()
	}

	if err != nil {
		return nil, err
	}

	body, _ := result.([]byte)

	return body, nil
}

// checkException 检测 Moodle 的异常响应体.
func checkException(body []byte) error {
	var probe struct {
		Exception string `json:"exception"`
		ErrorCode string `json:"errorcode"`
		Message   string `json:"message"`
		DebugInfo string `json:"debuginfo"`
	}

	if err := sonic.Unmarshal(body, &probe); err != nil {
		// 非对象响应（如数组）不携带异常
		return nil
	}

	if probe.Exception != "" || probe.ErrorCode != "" {
		return &APIError{Code: probe.ErrorCode, Message: probe.Message, Debug: probe.DebugInfo}
	}

	return nil
}

// call 以指定令牌调用 Web Service 函数.
func (c *MoodleClient) call(ctx context.Context, token, wsfunction string, params url.Values) ([]byte, error) {
	form := url.Values{}
	form.Set("wstoken", token)
	form.Set("wsfunction", wsfunction)
	form.Set("moodlewsrestformat", "json")

	for k, vs := range params {
		for _, v := range vs {
			form.Add(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+restEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build lms request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.doRequest(req, wsfunction)
	if err != nil {
		return nil, err
	}

	if err := checkException(body); err != nil {
		return nil, err
	}

	return body, nil
}

// adminCall 以管理员令牌调用.
func (c *MoodleClient) adminCall(ctx context.Context, wsfunction string, params url.Values) ([]byte, error) {
	return c.call(ctx, c.cfg.AdminToken, wsfunction, params)
}

// Authenticate 以学生凭据换取访问令牌.
func (c *MoodleClient) Authenticate(ctx context.Context, cred Credential) (string, error) {
	form := url.Values{}
	form.Set("username", cred.Username)
	form.Set("password", cred.Password)
	form.Set("service", c.cfg.Service)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.doRequest(req, "authenticate")
	if err != nil {
		return "", err
	}

	var result struct {
		Token     string `json:"token"`
		Error     string `json:"error"`
		ErrorCode string `json:"errorcode"`
	}

	if err := sonic.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}

	if result.Token == "" {
		return "", &APIError{Code: result.ErrorCode, Message: result.Error}
	}

	return result.Token, nil
}

// GetIdentity 按校内学号（idnumber 字段）解析远端用户.
func (c *MoodleClient) GetIdentity(ctx context.Context, ownerIdentity string) (Identity, error) {
	params := url.Values{}
	params.Set("field", "idnumber")
	params.Set("values[0]", ownerIdentity)

	body, err := c.adminCall(ctx, "core_user_get_users_by_field", params)
	if err != nil {
		return Identity{}, err
	}

	var users []Identity
	if err := sonic.Unmarshal(body, &users); err != nil {
		return Identity{}, fmt.Errorf("parse identity response: %w", err)
	}

	if len(users) == 0 {
		return Identity{}, &APIError{Code: "usernotfound", Message: "no user with idnumber " + ownerIdentity}
	}

	return users[0], nil
}

// UploadDraft 上传文件到用户草稿区.
func (c *MoodleClient) UploadDraft(ctx context.Context, token string, draftItemID *int64, fileName string, r io.Reader, size int64) (int64, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file_box", fileName)
	if err != nil {
		return 0, fmt.Errorf("create multipart file: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return 0, fmt.Errorf("copy upload body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := c.cfg.BaseURL + uploadEndpoint + "?token=" + url.QueryEscape(token)
	if draftItemID != nil {
		// 复用既有草稿项，中断后续传不产生孤儿草稿
		endpoint += "&itemid=" + strconv.FormatInt(*draftItemID, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := c.doRequest(req, "upload_draft")
	if err != nil {
		return 0, err
	}

	if err := checkException(body); err != nil {
		return 0, err
	}

	var uploaded []struct {
		ItemID int64 `json:"itemid"`
	}

	if err := sonic.Unmarshal(body, &uploaded); err != nil {
		return 0, fmt.Errorf("parse upload response: %w", err)
	}

	if len(uploaded) == 0 {
		return 0, &APIError{Code: "uploadfailed", Message: "upload returned no items"}
	}

	return uploaded[0].ItemID, nil
}

// VerifyTarget 检查作业提交目标是否可用.
func (c *MoodleClient) VerifyTarget(ctx context.Context, assignmentID int) (TargetStatus, error) {
	body, err := c.adminCall(ctx, "mod_assign_get_assignments", url.Values{})
	if err != nil {
		return TargetStatus{}, err
	}

	var result struct {
		Courses []struct {
			Assignments []struct {
				ID         int   `json:"id"`
				DueDate    int64 `json:"duedate"`
				CutoffDate int64 `json:"cutoffdate"`
			} `json:"assignments"`
		} `json:"courses"`
	}

	if err := sonic.Unmarshal(body, &result); err != nil {
		return TargetStatus{}, fmt.Errorf("parse assignments response: %w", err)
	}

	now := time.Now()

	for _, course := range result.Courses {
		for _, assign := range course.Assignments {
			if assign.ID != assignmentID {
				continue
			}

			status := TargetStatus{AssignmentID: assignmentID, Open: true}

			if assign.DueDate > 0 {
				status.DueDate = time.Unix(assign.DueDate, 0)
			}

			if assign.CutoffDate > 0 {
				status.CutoffDate = time.Unix(assign.CutoffDate, 0)
				if now.After(status.CutoffDate) {
					status.Open = false
				}
			}

			return status, nil
		}
	}

	return TargetStatus{}, &APIError{Code: "assignnotfound", Message: fmt.Sprintf("assignment %d not found", assignmentID)}
}

// LinkDraft 将草稿项挂接到作业提交.
func (c *MoodleClient) LinkDraft(ctx context.Context, token string, assignmentID int, draftItemID int64) (LinkResult, error) {
	params := url.Values{}
	params.Set("assignmentid", strconv.Itoa(assignmentID))
	params.Set("plugindata[files_filemanager]", strconv.FormatInt(draftItemID, 10))

	body, err := c.call(ctx, token, "mod_assign_save_submission", params)
	if err != nil {
		return LinkResult{}, err
	}

	var warnings []struct {
		Message string `json:"message"`
	}

	// 成功时返回空数组或警告列表
	if err := sonic.Unmarshal(body, &warnings); err != nil {
		return LinkResult{Accepted: true}, nil
	}

	result := LinkResult{Accepted: true}
	for _, w := range warnings {
		result.Warnings = append(result.Warnings, w.Message)
	}

	return result, nil
}

// GetSubmissionStatus 获取用户在指定作业下的提交状态.
func (c *MoodleClient) GetSubmissionStatus(ctx context.Context, assignmentID int, userID int64) (SubmissionStatus, error) {
	params := url.Values{}
	params.Set("assignid", strconv.Itoa(assignmentID))
	params.Set("userid", strconv.FormatInt(userID, 10))

	body, err := c.adminCall(ctx, "mod_assign_get_submission_status", params)
	if err != nil {
		return SubmissionStatus{}, err
	}

	var result struct {
		LastAttempt struct {
			CanSubmit  bool `json:"cansubmit"`
			Submission struct {
				ID      int64  `json:"id"`
				Status  string `json:"status"`
				Plugins []struct {
					Type      string `json:"type"`
					FileAreas []struct {
						Files []struct {
							Filename string `json:"filename"`
						} `json:"files"`
					} `json:"fileareas"`
				} `json:"plugins"`
			} `json:"submission"`
		} `json:"lastattempt"`
	}

	if err := sonic.Unmarshal(body, &result); err != nil {
		return SubmissionStatus{}, fmt.Errorf("parse submission status: %w", err)
	}

	status := SubmissionStatus{
		Status:      result.LastAttempt.Submission.Status,
		CanFinalize: result.LastAttempt.CanSubmit,
	}

	if result.LastAttempt.Submission.ID > 0 {
		status.SubmissionID = strconv.FormatInt(result.LastAttempt.Submission.ID, 10)
	}

	for _, plugin := range result.LastAttempt.Submission.Plugins {
		if plugin.Type != "file" {
			continue
		}

		for _, area := range plugin.FileAreas {
			status.AttachedFiles += len(area.Files)
		}
	}

	return status, nil
}

// Finalize 将草稿提交定稿.
func (c *MoodleClient) Finalize(ctx context.Context, token string, assignmentID int) error {
	params := url.Values{}
	params.Set("assignmentid", strconv.Itoa(assignmentID))
	params.Set("acceptsubmissionstatement", "1")

	_, err := c.call(ctx, token, "mod_assign_submit_for_grading", params)

	return err
}

// Close 释放空闲连接.
func (c *MoodleClient) Close() error {
	c.http.CloseIdleConnections()

	return nil
}
