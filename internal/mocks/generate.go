// Package mocks provides mock implementations of the ports and repository
// interfaces used by the reconciliation services.
//
// This package uses go.uber.org/mock (gomock). Mocks are generated with
// go:generate directives and provide a fluent API for setting expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	src := mocks.NewMockRegistrationSource(ctrl)
//	src.EXPECT().FetchRegistrations(gomock.Any(), "823000001", "FA25").Return(rows, nil)
package mocks

// Generate mock for RegistrationSource interface from internal/ports package.
// This creates MockRegistrationSource with methods FetchRegistrations and Ping.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=registration_source_mock.go github.com/srbenoit/mathops-sub032/internal/ports RegistrationSource

// Generate mock for StudentLocker interface from internal/core package.
// This creates MockStudentLocker with method TryLock.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=student_locker_mock.go github.com/srbenoit/mathops-sub032/internal/core StudentLocker
