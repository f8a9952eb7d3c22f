// Package testutil provides testify mocks for the interfaces of the linguist
// library and small filesystem helpers for fixtures.
package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/stackvity/stack-linguist/pkg/linguist"
	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
)

// MockHooks implements linguist.Hooks. Hooks are called from the walker and
// from every worker, so expectations must not depend on call order.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnFileDiscovered(path string) error {
	return m.Called(path).Error(0)
}

func (m *MockHooks) OnFileStatusUpdate(path string, status linguist.Status, message string, duration time.Duration) error {
	return m.Called(path, status, message, duration).Error(0)
}

func (m *MockHooks) OnRunComplete(results *linguist.Results, duration time.Duration) error {
	return m.Called(results, duration).Error(0)
}

// MockCacheManager implements cache.Manager.
type MockCacheManager struct {
	mock.Mock
}

func (m *MockCacheManager) Load(path string) error {
	return m.Called(path).Error(0)
}

func (m *MockCacheManager) Check(relPath string, key cache.Key) (cache.Entry, bool) {
	args := m.Called(relPath, key)
	entry, _ := args.Get(0).(cache.Entry)
	return entry, args.Bool(1)
}

func (m *MockCacheManager) Update(relPath string, key cache.Key, language, stage string) error {
	return m.Called(relPath, key, language, stage).Error(0)
}

func (m *MockCacheManager) Persist(path string) error {
	return m.Called(path).Error(0)
}

// MockSampleProvider implements samples.Provider.
type MockSampleProvider struct {
	mock.Mock
}

func (m *MockSampleProvider) Sample(ctx context.Context, language string) (string, bool, error) {
	args := m.Called(ctx, language)
	return args.String(0), args.Bool(1), args.Error(2)
}

// MockStrategy implements classifier.Strategy.
type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Choose(ctx context.Context, path string, candidates []string, content string) (string, error) {
	args := m.Called(ctx, path, candidates, content)
	return args.String(0), args.Error(1)
}
