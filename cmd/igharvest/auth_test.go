package main

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/auth"
	"igharvest/pkg/ui"
)

func scriptedPrompter(answers ...string) *prompter {
	return &prompter{
		in:  bufio.NewReader(strings.NewReader(strings.Join(answers, "\n") + "\n")),
		out: io.Discard,
		fd:  -1,
	}
}

func TestLoginAccountPromptsForMissingValues(t *testing.T) {
	manager, store := auth.NewMockManager()

	saved, err := loginAccount(scriptedPrompter("@scout", "hunter2"), manager, "")
	require.NoError(t, err)
	assert.Equal(t, "scout", saved)

	account, err := store.Retrieve("scout")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", account.Password)
}

func TestLoginAccountOverwriteNeedsConfirmation(t *testing.T) {
	manager, store := auth.NewMockManager()
	require.NoError(t, manager.Store(&auth.Account{Username: "scout", Password: "old"}))

	saved, err := loginAccount(scriptedPrompter("n"), manager, "scout")
	require.NoError(t, err)
	assert.Empty(t, saved)

	saved, err = loginAccount(scriptedPrompter("y", "new"), manager, "scout")
	require.NoError(t, err)
	assert.Equal(t, "scout", saved)
	account, _ := store.Retrieve("scout")
	assert.Equal(t, "new", account.Password)
}

func TestLoginAccountRejectsEmptyPassword(t *testing.T) {
	manager, store := auth.NewMockManager()

	_, err := loginAccount(scriptedPrompter(""), manager, "scout")
	assert.EqualError(t, err, "password is required")
	assert.Equal(t, 0, store.Count())
}

func TestLogoutAccountFromMenu(t *testing.T) {
	ui.SetOutput(io.Discard)
	t.Cleanup(func() { ui.SetOutput(nil) })
	manager, store := auth.NewMockManager()
	require.NoError(t, manager.Store(&auth.Account{Username: "alpha", Password: "a"}))
	require.NoError(t, manager.Store(&auth.Account{Username: "beta", Password: "b"}))

	names := []string{}
	accounts, _ := manager.List()
	for _, a := range accounts {
		names = append(names, a.Username)
	}

	removed, err := logoutAccount(scriptedPrompter("2"), manager, "")
	require.NoError(t, err)
	assert.Equal(t, names[1], removed)
	assert.Equal(t, 1, store.Count())

	removed, err = logoutAccount(scriptedPrompter("0"), manager, "")
	require.NoError(t, err)
	assert.Empty(t, removed)

	_, err = logoutAccount(scriptedPrompter("9"), manager, "")
	assert.Error(t, err)
	assert.Equal(t, 1, store.Count())
}

func TestLogoutAccountByName(t *testing.T) {
	manager, _ := auth.NewMockManager()
	_, err := logoutAccount(scriptedPrompter(), manager, "ghost")
	assert.ErrorIs(t, err, auth.ErrCredentialsNotFound)
}

func TestAccountRowsMarkDefault(t *testing.T) {
	rows := accountRows([]*auth.Account{
		{Username: "newest", Password: "secret"},
		{Username: "older", Password: "secret"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"newest (default)", "********", "-"}, rows[0])
	assert.Equal(t, "older", rows[1][0])
}
