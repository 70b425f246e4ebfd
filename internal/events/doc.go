// Package events decouples job submission from job execution.
//
// The submission gateway emits a TaskRequestEvent for every accepted job; a
// handler registered by the application turns the event into a task and
// hands it to the runner. Services therefore never import the task package.
package events
