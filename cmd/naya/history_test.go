package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/naya/history"
	"github.com/BaSui01/naya/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryCommand_ListAndClear(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore(history.Estimator)
	_, err := store.Save(ctx, history.Record{Role: types.RoleUser, Content: "Di mana Candi Pari?"})
	require.NoError(t, err)
	_, err = store.Save(ctx, history.Record{Role: types.RoleAssistant, Content: "Candi Pari ada di Porong."})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, historyCommand(ctx, "list", store, 10, &out))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "user")
	assert.Contains(t, lines[2], "Candi Pari ada di Porong.")

	out.Reset()
	require.NoError(t, historyCommand(ctx, "list", store, 1, &out))
	assert.NotContains(t, out.String(), "Di mana")

	out.Reset()
	require.NoError(t, historyCommand(ctx, "clear", store, 0, &out))
	assert.Equal(t, "Chat history cleared.\n", out.String())

	out.Reset()
	require.NoError(t, historyCommand(ctx, "list", store, 10, &out))
	assert.Equal(t, "No chat history (memory).\n", out.String())
}

func TestHistoryCommand_Unknown(t *testing.T) {
	var out bytes.Buffer
	err := historyCommand(context.Background(), "export", history.NewMemoryStore(nil), 10, &out)
	assert.ErrorContains(t, err, "unknown history subcommand: export")
	assert.Contains(t, out.String(), "Chat History Commands")
}

func TestPrintRecords(t *testing.T) {
	var out bytes.Buffer
	at := time.Date(2024, 8, 17, 9, 30, 0, 0, time.Local)
	require.NoError(t, printRecords(&out, "sql", []history.Record{
		{ID: 7, Role: types.RoleUser, Content: "Halo\nNaya", TokenCount: 3, CreatedAt: at},
	}))
	assert.Contains(t, out.String(), "2024-08-17 09:30:00")
	assert.Contains(t, out.String(), "Halo Naya")
	assert.Contains(t, out.String(), "7 ")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("  a\n b\t c "))

	long := strings.Repeat("é", 100)
	p := preview(long)
	assert.Equal(t, previewRunes, len([]rune(p)))
	assert.True(t, strings.HasSuffix(p, "…"))
}
