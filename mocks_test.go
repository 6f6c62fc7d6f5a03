package library_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-library"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider implements library.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (library.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(library.Identity), args.Error(1)
}

func (m *MockIdentityProvider) FindUserByID(ctx context.Context, id int64) (*library.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*library.User), args.Error(1)
}

// MockLogger implements library.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// recordingSink captures activity events
type recordingSink struct {
	mu     sync.Mutex
	events []library.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event library.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []library.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]library.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) Last() library.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return library.ActivityEvent{}
	}
	return s.events[len(s.events)-1]
}
