// Package domain defines review jobs: their status machine, the append-only
// output, the terminal result and the uploaded source they describe.
package domain
