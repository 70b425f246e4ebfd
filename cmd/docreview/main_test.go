package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandTree(t *testing.T) {
	cmd := newCommand()

	var names []string
	for _, sub := range cmd.Commands {
		names = append(names, sub.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "review", "migrate", "models"}, names)
}

func TestMigrateRequiresCommand(t *testing.T) {
	err := newCommand().Run(context.Background(), []string{"docreview", "migrate"})

	assert.ErrorIs(t, err, ErrMissingMigrationCommand)
}

func TestReviewRequiresFile(t *testing.T) {
	err := newCommand().Run(context.Background(), []string{"docreview", "review"})

	assert.Error(t, err)
}
