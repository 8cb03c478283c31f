// Package mocks provides gomock implementations of the core ports for tests.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	archive := mocks.NewMockJobArchive(ctrl)
//	archive.EXPECT().Get(gomock.Any(), "job-1").Return(nil, apperrors.NotFound("job not found"))
package mocks

// Generate mock for SessionStateStore interface from internal/core package.
// This creates MockSessionStateStore with methods: Save, Load, Delete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=session_state_store_mock.go github.com/target/cashier/internal/core SessionStateStore

// Generate mock for JobArchive interface from internal/core package.
// This creates MockJobArchive with methods: Save, Get
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_archive_mock.go github.com/target/cashier/internal/core JobArchive

// Generate mock for ArtifactStore interface from internal/core package.
// This creates MockArtifactStore with methods: Put
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=artifact_store_mock.go github.com/target/cashier/internal/core ArtifactStore
