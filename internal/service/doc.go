// Package service contains the application use cases of the review API. It
// sits between the HTTP delivery layer and the job store, task runner and
// report storage.
//
// The JobService is the submission gateway: it validates uploads (presence,
// size, extension and sniffed content, operation mode), stores the source
// artifact, creates the Pending job record and dispatches a task request
// event. Everything after dispatch happens on the worker side (see the task
// package).
//
// Error Handling:
//   - Rejected submissions return *ValidationError carrying a client code.
//   - Lookups of unknown jobs return store.ErrJobNotFound unwrapped.
//   - Unexpected failures are wrapped in *JobServiceError.
//
// The API layer maps these onto HTTP status codes.
package service
