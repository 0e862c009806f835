package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/iris-chat/internal/service/action"
)

func TestLoadContacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
contacts:
  - name: Mom
    number: "+15550100200"
  - name: "Dr.  Patel"
    number: "5550111222"
  - name: ""
    number: "123"
`), 0o600))

	book, err := LoadContacts(path)
	require.NoError(t, err)
	require.Equal(t, 2, book.Len())

	n, err := book.LookupNumber(context.Background(), " mom ")
	require.NoError(t, err)
	require.Equal(t, "+15550100200", n)

	n, err = book.LookupNumber(context.Background(), "dr. patel")
	require.NoError(t, err)
	require.Equal(t, "5550111222", n)

	_, err = book.LookupNumber(context.Background(), "Dad")
	require.ErrorIs(t, err, action.ErrContactNotFound)
}

func TestLoadContactsErrors(t *testing.T) {
	book, err := LoadContacts("")
	require.NoError(t, err)
	require.Zero(t, book.Len())

	_, err = LoadContacts(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("contacts: [oops"), 0o600))
	_, err = LoadContacts(bad)
	require.Error(t, err)
}

func TestCallLoggerHonorsPermission(t *testing.T) {
	denied := NewCallLogger(false, nil)
	require.False(t, denied.CanPlaceCalls())

	allowed := NewCallLogger(true, nil)
	require.True(t, allowed.CanPlaceCalls())
	require.NoError(t, allowed.PlaceCall(context.Background(), "+15551234567"))
	require.Equal(t, []string{"+15551234567"}, allowed.Placed())
}

func TestExecutorWithPlatformAdapters(t *testing.T) {
	calls := NewCallLogger(true, nil)
	e := action.NewExecutor(action.Deps{
		Contacts: NewContactBook([]Contact{{Name: "Mom", Number: "5550100200"}}),
		Calls:    calls,
		Audio:    NewLoopPlayer(nil),
	})
	defer e.Close()

	text, err := e.ExecuteCall(context.Background(), "Mom")
	require.NoError(t, err)
	require.Equal(t, "Calling Mom...", text)
	require.Equal(t, []string{"5550100200"}, calls.Placed())
}
