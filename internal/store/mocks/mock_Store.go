// Package mocks provides test doubles for the run store.
package mocks

import (
	"context"

	store "github.com/sells-group/cloudless/internal/store"
	mock "github.com/stretchr/testify/mock"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

// CreateRun provides a mock function with given fields: ctx, params
func (_m *MockStore) CreateRun(ctx context.Context, params store.RunParams) (*store.Run, error) {
	ret := _m.Called(ctx, params)

	if len(ret) == 0 {
		panic("no return value specified for CreateRun")
	}

	var r0 *store.Run
	if rf, ok := ret.Get(0).(func(context.Context, store.RunParams) *store.Run); ok {
		r0 = rf(ctx, params)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*store.Run)
	}
	return r0, ret.Error(1)
}

// CompleteRun provides a mock function with given fields: ctx, runID, result
func (_m *MockStore) CompleteRun(ctx context.Context, runID string, result store.RunResult) error {
	ret := _m.Called(ctx, runID, result)

	if len(ret) == 0 {
		panic("no return value specified for CompleteRun")
	}
	return ret.Error(0)
}

// FailRun provides a mock function with given fields: ctx, runID, runErr
func (_m *MockStore) FailRun(ctx context.Context, runID string, runErr error) error {
	ret := _m.Called(ctx, runID, runErr)

	if len(ret) == 0 {
		panic("no return value specified for FailRun")
	}
	return ret.Error(0)
}

// GetRun provides a mock function with given fields: ctx, runID
func (_m *MockStore) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for GetRun")
	}

	var r0 *store.Run
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*store.Run)
	}
	return r0, ret.Error(1)
}

// ListRuns provides a mock function with given fields: ctx, filter
func (_m *MockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error) {
	ret := _m.Called(ctx, filter)

	if len(ret) == 0 {
		panic("no return value specified for ListRuns")
	}

	var r0 []store.Run
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]store.Run)
	}
	return r0, ret.Error(1)
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}
	return ret.Error(0)
}

// Close provides a mock function with no fields
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}
	return ret.Error(0)
}

// NewMockStore creates a new instance of MockStore.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
