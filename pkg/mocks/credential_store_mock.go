package mocks

import (
	"context"

	"github.com/dukex/graphsmith/pkg/credentials"
	"github.com/stretchr/testify/mock"
)

// MockCredentialStore is a mock implementation of credentials.Store interface.
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) Create(ctx context.Context, req credentials.CreateRequest) (credentials.Created, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(credentials.Created), args.Error(1)
}

func (m *MockCredentialStore) List(ctx context.Context) ([]credentials.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]credentials.Summary), args.Error(1)
}
