package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsakn/smartlight-client/internal/api"
	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/session"
)

func TestWriteLampsGroupsByRoom(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeLamps(&buf, []model.Lamp{
		{ID: 7, Name: "Desk", Room: "Office", Status: true, Connection: true},
		{ID: 2, Name: "Ceiling", Room: "Kitchen"},
		{ID: 3, Name: "Shelf", Room: "Office", Connection: true},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "Ceiling")
	assert.Contains(t, lines[1], "offline")
	assert.Contains(t, lines[2], "Shelf")
	assert.Contains(t, lines[3], "Desk")
	assert.Contains(t, lines[3], "ON")
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	writeStatus(&buf, "http://localhost:8000", true)
	assert.Equal(t, "backend: http://localhost:8000\nsession: signed in\n", buf.String())
}

func TestUserError(t *testing.T) {
	assert.EqualError(t, userError(session.ErrNotAuthenticated, ""), "not signed in; run `smartlight login` first")
	assert.EqualError(t,
		userError(&api.StatusError{StatusCode: 401, Detail: "No active account found with the given credentials"}, session.LoginFailed),
		"No active account found with the given credentials")
	assert.EqualError(t, userError(errors.New(""), session.LoginFailed), session.LoginFailed)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "login", "register", "logout", "lamps", "toggle", "status", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
