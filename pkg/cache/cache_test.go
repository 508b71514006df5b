package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/yeisme/exambridge/pkg/cache"
)

// testMapping 测试用的科目映射结构体.
type testMapping struct {
	SubjectCode  string `json:"subject_code"`
	CourseID     int    `json:"course_id"`
	AssignmentID int    `json:"assignment_id"`
}

// mockKVStore 模拟KV存储实现.
type mockKVStore struct {
	data map[string][]byte
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{
		data: make(map[string][]byte),
	}
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if value, exists := m.data[key]; exists {
		return value, nil
	}

	return nil, fmt.Errorf("key not found")
}

func (m *mockKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mockKVStore) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *mockKVStore) Exists(ctx context.Context, key string) (bool, error) {
	_, exists := m.data[key]
	return exists, nil
}

func (m *mockKVStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}

	return keys, nil
}

func (m *mockKVStore) Close() error {
	return nil
}

// TestNewCache 测试 NewCache 函数.
func TestNewCache(t *testing.T) {
	mockStore := newMockKVStore()
	c := cache.NewCache(mockStore)

	if c == nil {
		t.Fatal("NewCache returned nil")
	}
}

// TestCache_GetSet 测试 Get/Set 方法.
func TestCache_GetSet(t *testing.T) {
	mockStore := newMockKVStore()
	c := cache.NewCache(mockStore)
	ctx := context.Background()

	// 测试获取不存在的键
	_, err := cache.Get[testMapping](ctx, c, "mapping:NONE")
	if err == nil {
		t.Error("Expected error for nonexistent key")
	}

	// 设置测试数据
	mapping := testMapping{SubjectCode: "MATH101", CourseID: 12, AssignmentID: 301}

	err = cache.Set(ctx, c, "mapping:MATH101", mapping, 0)
	if err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	// 获取存在的键
	got, err := cache.Get[testMapping](ctx, c, "mapping:MATH101")
	if err != nil {
		t.Fatalf("Failed to get cache: %v", err)
	}

	if got != mapping {
		t.Errorf("Retrieved mapping %+v does not match original %+v", got, mapping)
	}
}

// TestCache_Delete 测试 Delete 方法.
func TestCache_Delete(t *testing.T) {
	mockStore := newMockKVStore()
	c := cache.NewCache(mockStore)
	ctx := context.Background()

	mapping := testMapping{SubjectCode: "PHYS202", CourseID: 7, AssignmentID: 88}

	err := cache.Set(ctx, c, "mapping:PHYS202", mapping, 0)
	if err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	exists, err := c.Exists(ctx, "mapping:PHYS202")
	if err != nil {
		t.Fatalf("Failed to check existence: %v", err)
	}

	if !exists {
		t.Error("Key should exist before deletion")
	}

	err = c.Delete(ctx, "mapping:PHYS202")
	if err != nil {
		t.Fatalf("Failed to delete cache: %v", err)
	}

	exists, err = c.Exists(ctx, "mapping:PHYS202")
	if err != nil {
		t.Fatalf("Failed to check existence after deletion: %v", err)
	}

	if exists {
		t.Error("Key should not exist after deletion")
	}
}

// TestGetOrSet 测试 GetOrSet 方法.
func TestGetOrSet(t *testing.T) {
	mockStore := newMockKVStore()
	c := cache.NewCache(mockStore)
	ctx := context.Background()

	callCount := 0
	getter := func() (testMapping, error) {
		callCount++
		return testMapping{SubjectCode: "CHEM110", CourseID: 3, AssignmentID: 45}, nil
	}

	// 第一次调用，应该调用getter
	m1, err := cache.GetOrSet(ctx, c, "mapping:CHEM110", getter, 0)
	if err != nil {
		t.Fatalf("Failed to get or set: %v", err)
	}

	if callCount != 1 {
		t.Errorf("Expected getter to be called once, got %d", callCount)
	}

	// 第二次调用，应该从缓存获取
	m2, err := cache.GetOrSet(ctx, c, "mapping:CHEM110", getter, 0)
	if err != nil {
		t.Fatalf("Failed to get or set: %v", err)
	}

	if callCount != 1 {
		t.Errorf("Expected getter to be called only once, got %d", callCount)
	}

	if m1 != m2 {
		t.Errorf("Results don't match: %+v vs %+v", m1, m2)
	}
}

// TestGetOrSet_GetterError 测试 GetOrSet 方法中 getter 返回错误的情况.
func TestGetOrSet_GetterError(t *testing.T) {
	mockStore := newMockKVStore()
	c := cache.NewCache(mockStore)
	ctx := context.Background()

	getter := func() (testMapping, error) {
		return testMapping{}, errors.New("getter error")
	}

	_, err := cache.GetOrSet(ctx, c, "mapping:error", getter, 0)
	if err == nil {
		t.Error("Expected error from getter")
	}

	if err.Error() != "getter error" {
		t.Errorf("Expected 'getter error', got '%s'", err.Error())
	}
}

// TestCache_Clear 测试 Clear 方法.
func TestCache_Clear(t *testing.T) {
	mockStore := newMockKVStore()
	c := cache.NewCache(mockStore)
	ctx := context.Background()

	mappings := []testMapping{
		{SubjectCode: "MATH101", CourseID: 12, AssignmentID: 301},
		{SubjectCode: "PHYS202", CourseID: 7, AssignmentID: 88},
		{SubjectCode: "CHEM110", CourseID: 3, AssignmentID: 45},
	}

	for i, m := range mappings {
		key := "mapping:" + m.SubjectCode

		err := cache.Set(ctx, c, key, m, 0)
		if err != nil {
			t.Fatalf("Failed to set cache for mapping %d: %v", i, err)
		}
	}

	if len(mockStore.data) != len(mappings) {
		t.Errorf("Expected %d items, got %d", len(mappings), len(mockStore.data))
	}

	err := c.Clear(ctx)
	if err != nil {
		t.Fatalf("Failed to clear cache: %v", err)
	}

	if len(mockStore.data) != 0 {
		t.Errorf("Expected 0 items after clear, got %d", len(mockStore.data))
	}
}
