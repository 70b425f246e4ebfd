// Package store holds job records in memory and defines the ports through
// which uploads and rendered reports reach their storage backends.
package store
