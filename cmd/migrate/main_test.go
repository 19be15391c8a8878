package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://db:5432/attachtrack",
		maskDatabaseURL("postgres://admin:hunter2@db:5432/attachtrack?sslmode=require"))
	assert.Equal(t, "***", maskDatabaseURL("not a url"))
	assert.Equal(t, "***", maskDatabaseURL(""))
}
