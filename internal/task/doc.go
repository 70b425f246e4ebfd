// Package task runs accepted jobs in the background. The TaskRunner gives
// every task its own goroutine, a cancellable handle and a time budget, and
// bounds how many tasks execute at once; ReviewTask is the worker that drives
// one document review from Pending to a terminal state.
package task
